package coordinator

import (
	"time"

	"github.com/aristath/saxo-portfolio/internal/domain"
)

// Snapshot returns a copy of the latest published snapshot, or nil before
// the first successful poll.
func (c *Coordinator) Snapshot() *domain.Snapshot {
	s := c.current()
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}

// current returns the published snapshot itself. Callers must not modify it.
func (c *Coordinator) current() *domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastUpdateSuccess reports whether the most recent poll succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdateSuccess
}

// LastSuccessAt returns the time of the last successful poll.
func (c *Coordinator) LastSuccessAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccessAt
}

// LastError returns the error of the most recent poll, if it failed.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// PerformanceCache returns a copy of the performance cache.
func (c *Coordinator) PerformanceCache() domain.PerformanceCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}

func (c *Coordinator) value(get func(*domain.Snapshot) float64) float64 {
	if s := c.current(); s != nil {
		return get(s)
	}
	return 0
}

func (c *Coordinator) text(get func(*domain.Snapshot) string, fallback string) string {
	if s := c.current(); s != nil {
		return get(s)
	}
	return fallback
}

// CashBalance returns the cash balance, 0 before the first snapshot.
func (c *Coordinator) CashBalance() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.CashBalance })
}

// TotalValue returns the total account value.
func (c *Coordinator) TotalValue() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.TotalValue })
}

// NonMarginPositionsValue returns the value of non-margin positions.
func (c *Coordinator) NonMarginPositionsValue() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.NonMarginPositionsValue })
}

// Currency returns the account currency, empty before the first snapshot.
func (c *Coordinator) Currency() string {
	return c.text(func(s *domain.Snapshot) string { return s.Currency }, "")
}

// YTDEarningsPercentage returns the year-to-date return in percent.
func (c *Coordinator) YTDEarningsPercentage() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.YTDEarningsPercentage })
}

// InvestmentPerformancePercentage returns the all-time return in percent.
func (c *Coordinator) InvestmentPerformancePercentage() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.AllTimePerformance })
}

// YTDInvestmentPerformancePercentage returns the year-to-date investment return in percent.
func (c *Coordinator) YTDInvestmentPerformancePercentage() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.YTDPerformance })
}

// MonthInvestmentPerformancePercentage returns the month-to-date return in percent.
func (c *Coordinator) MonthInvestmentPerformancePercentage() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.MonthPerformance })
}

// QuarterInvestmentPerformancePercentage returns the quarter-to-date return in percent.
func (c *Coordinator) QuarterInvestmentPerformancePercentage() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.QuarterPerformance })
}

// AccumulatedProfitLoss returns the all-time profit/loss in the account currency.
func (c *Coordinator) AccumulatedProfitLoss() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.AccumulatedProfitLoss })
}

// CashTransferBalance returns the latest net cash transfer balance.
func (c *Coordinator) CashTransferBalance() float64 {
	return c.value(func(s *domain.Snapshot) float64 { return s.CashTransferBalance })
}

// ClientID returns the brokerage client id.
func (c *Coordinator) ClientID() string {
	return c.text(func(s *domain.Snapshot) string { return s.ClientID }, "")
}

// AccountID returns the brokerage account id.
func (c *Coordinator) AccountID() string {
	return c.text(func(s *domain.Snapshot) string { return s.AccountID }, "")
}

// ClientName returns "unknown" until client details have been fetched.
func (c *Coordinator) ClientName() string {
	return c.text(func(s *domain.Snapshot) string { return s.ClientName }, domain.UnknownClientName)
}

// LastUpdated returns the timestamp of the latest snapshot, or the zero time.
func (c *Coordinator) LastUpdated() time.Time {
	if s := c.current(); s != nil {
		return s.LastUpdated
	}
	return time.Time{}
}
