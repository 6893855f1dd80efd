package saxo

import (
	"math"
	"strings"

	"github.com/aristath/saxo-portfolio/internal/domain"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// toBalance validates the mandatory balance fields.
func toBalance(resp balanceResponse) (*domain.AccountBalance, error) {
	const op = "balance"

	var missing []string
	if resp.CashBalance == nil {
		missing = append(missing, "CashBalance")
	}
	if resp.Currency == nil {
		missing = append(missing, "Currency")
	}
	if resp.TotalValue == nil {
		missing = append(missing, "TotalValue")
	}
	if len(missing) > 0 {
		return nil, domain.NewValidationError(op, "missing required fields: %s", strings.Join(missing, ", "))
	}

	if !finite(*resp.CashBalance) {
		return nil, domain.NewValidationError(op, "CashBalance is not a finite number")
	}
	if !finite(*resp.TotalValue) {
		return nil, domain.NewValidationError(op, "TotalValue is not a finite number")
	}
	if *resp.TotalValue < 0 {
		return nil, domain.NewValidationError(op, "TotalValue must be >= 0, got %v", *resp.TotalValue)
	}
	currency := strings.TrimSpace(*resp.Currency)
	if currency == "" {
		return nil, domain.NewValidationError(op, "Currency is empty")
	}

	balance := &domain.AccountBalance{
		CashBalance: *resp.CashBalance,
		TotalValue:  *resp.TotalValue,
		Currency:    currency,
	}
	if resp.NonMarginPositionsValue != nil {
		if !finite(*resp.NonMarginPositionsValue) {
			return nil, domain.NewValidationError(op, "NonMarginPositionsValue is not a finite number")
		}
		balance.NonMarginPositionsValue = *resp.NonMarginPositionsValue
	}
	return balance, nil
}

func toPerformanceV3(resp performanceV3Response) (float64, error) {
	if resp.BalancePerformance == nil {
		return 0, domain.NewValidationError("performance_v3", "missing BalancePerformance")
	}
	if resp.BalancePerformance.AccumulatedProfitLoss == nil {
		return 0, nil
	}
	v := *resp.BalancePerformance.AccumulatedProfitLoss
	if !finite(v) {
		return 0, domain.NewValidationError("performance_v3", "AccumulatedProfitLoss is not a finite number")
	}
	return v, nil
}

// toPeriodPerformance takes the latest cash transfer as the last list entry.
func toPeriodPerformance(period domain.PerformancePeriod, resp performanceV4Response) (domain.PeriodPerformance, error) {
	result := domain.PeriodPerformance{Period: period}
	if resp.KeyFigures == nil {
		return result, domain.NewValidationError("performance_v4", "missing KeyFigures for period %s", period)
	}
	if resp.KeyFigures.ReturnFraction != nil {
		if !finite(*resp.KeyFigures.ReturnFraction) {
			return result, domain.NewValidationError("performance_v4", "ReturnFraction is not a finite number")
		}
		result.ReturnFraction = *resp.KeyFigures.ReturnFraction
	}
	if resp.Balance != nil && len(resp.Balance.CashTransfer) > 0 {
		result.LatestCashTransfer = resp.Balance.CashTransfer[len(resp.Balance.CashTransfer)-1].Value
		result.HasCashTransferData = true
	}
	return result, nil
}
