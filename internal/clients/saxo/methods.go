package saxo

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aristath/saxo-portfolio/internal/domain"
)

const (
	balancePath       = "/port/v1/balances/me"
	clientDetailsPath = "/port/v1/clients/me"
	performanceV3Path = "/hist/v3/perf/"
	performanceV4Path = "/hist/v4/performance/timeseries"
	netPositionsPath  = "/port/v1/netpositions/me"

	performanceFieldGroups = "Balance,KeyFigures"
	netPositionFieldGroups = "NetPositionBase,NetPositionView,DisplayAndFormat"
)

// Balance fetches the account balance. CashBalance, Currency and TotalValue are required.
func (c *Client) Balance(ctx context.Context) (*domain.AccountBalance, error) {
	var resp balanceResponse
	if err := c.get(ctx, "balance", balancePath, nil, &resp); err != nil {
		return nil, err
	}
	return toBalance(resp)
}

// ClientDetails fetches the client identity. ClientKey may be empty.
func (c *Client) ClientDetails(ctx context.Context) (*domain.ClientDetails, error) {
	var resp clientDetailsResponse
	if err := c.get(ctx, "client_details", clientDetailsPath, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.ClientDetails{
		ClientKey: resp.ClientKey,
		ClientID:  resp.ClientID,
		AccountID: resp.DefaultAccountID,
		Name:      resp.Name,
	}, nil
}

// PerformanceV3 returns the all-time AccumulatedProfitLoss.
func (c *Client) PerformanceV3(ctx context.Context, clientKey string) (float64, error) {
	if clientKey == "" {
		return 0, domain.NewValidationError("performance_v3", "client key is required")
	}
	query := url.Values{}
	query.Set("ClientKey", clientKey)
	query.Set("StandardPeriod", string(domain.PeriodAllTime))

	var resp performanceV3Response
	if err := c.get(ctx, "performance_v3", performanceV3Path, query, &resp); err != nil {
		return 0, err
	}
	return toPerformanceV3(resp)
}

// PerformanceV4 fetches key figures and cash transfers for one period.
func (c *Client) PerformanceV4(ctx context.Context, clientKey string, period domain.PerformancePeriod) (domain.PeriodPerformance, error) {
	if clientKey == "" {
		return domain.PeriodPerformance{Period: period}, domain.NewValidationError("performance_v4", "client key is required")
	}
	query := url.Values{}
	query.Set("ClientKey", clientKey)
	query.Set("StandardPeriod", string(period))
	query.Set("FieldGroups", performanceFieldGroups)

	var resp performanceV4Response
	if err := c.get(ctx, "performance_v4", performanceV4Path, query, &resp); err != nil {
		return domain.PeriodPerformance{Period: period}, err
	}
	return toPeriodPerformance(period, resp)
}

// PerformanceV4Batch fetches every period in domain.BatchPeriods in order,
// pausing between calls to avoid bursting. The first failure aborts the batch.
func (c *Client) PerformanceV4Batch(ctx context.Context, clientKey string) (map[domain.PerformancePeriod]domain.PeriodPerformance, error) {
	results := make(map[domain.PerformancePeriod]domain.PeriodPerformance, len(domain.BatchPeriods))
	for i, period := range domain.BatchPeriods {
		if i > 0 && c.batchSpacing > 0 {
			if err := c.sleep(ctx, c.batchSpacing); err != nil {
				return nil, domain.Wrap(domain.KindTransient, "performance_v4", err)
			}
		}
		perf, err := c.PerformanceV4(ctx, clientKey, period)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s performance: %w", period, err)
		}
		results[period] = perf
	}

	c.log.Debug().Int("periods", len(results)).Msg("Fetched batched performance")
	return results, nil
}

// NetPositions fetches aggregated open positions.
func (c *Client) NetPositions(ctx context.Context) ([]domain.NetPosition, error) {
	query := url.Values{}
	query.Set("FieldGroups", netPositionFieldGroups)

	var resp netPositionsResponse
	if err := c.get(ctx, "net_positions", netPositionsPath, query, &resp); err != nil {
		return nil, err
	}

	positions := make([]domain.NetPosition, 0, len(resp.Data))
	for _, item := range resp.Data {
		positions = append(positions, domain.NetPosition{
			NetPositionID: item.NetPositionID,
			Symbol:        item.DisplayAndFormat.Symbol,
			AssetType:     item.NetPositionBase.AssetType,
			Amount:        item.NetPositionBase.Amount,
			MarketValue:   item.NetPositionView.MarketValue,
			ProfitLoss:    item.NetPositionView.ProfitLossOnTrade,
			Currency:      item.DisplayAndFormat.Currency,
		})
	}
	return positions, nil
}

var _ domain.BrokerClient = (*Client)(nil)
