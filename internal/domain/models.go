package domain

import "time"

// UnknownClientName is reported until client details have been fetched.
const UnknownClientName = "unknown"

// Snapshot is the immutable record published after each successful poll.
// A new poll always produces a new value; published snapshots are never edited.
type Snapshot struct {
	CashBalance             float64   `json:"cash_balance"`
	TotalValue              float64   `json:"total_value"`
	NonMarginPositionsValue float64   `json:"non_margin_positions_value"`
	Currency                string    `json:"currency"`
	YTDEarningsPercentage   float64   `json:"ytd_earnings_percentage"`
	AllTimePerformance      float64   `json:"investment_performance_percentage"`
	YTDPerformance          float64   `json:"ytd_investment_performance_percentage"`
	MonthPerformance        float64   `json:"month_investment_performance_percentage"`
	QuarterPerformance      float64   `json:"quarter_investment_performance_percentage"`
	AccumulatedProfitLoss   float64   `json:"accumulated_profit_loss"`
	CashTransferBalance     float64   `json:"cash_transfer_balance"`
	ClientID                string    `json:"client_id"`
	AccountID               string    `json:"account_id"`
	ClientName              string    `json:"client_name"`
	LastUpdated             time.Time `json:"last_updated"`
}

// PerformanceCache holds the slow-moving performance block with its own staleness clock.
type PerformanceCache struct {
	AllTimePerformance    float64
	YTDPerformance        float64
	MonthPerformance      float64
	QuarterPerformance    float64
	AccumulatedProfitLoss float64
	CashTransferBalance   float64
	ClientKey             string
	ClientID              string
	AccountID             string
	ClientName            string
	LastRefreshed         time.Time
}

// NewPerformanceCache returns the empty cache used at startup.
func NewPerformanceCache() PerformanceCache {
	return PerformanceCache{ClientName: UnknownClientName}
}

// IsEmpty reports whether the cache was never refreshed.
func (c PerformanceCache) IsEmpty() bool {
	return c.LastRefreshed.IsZero()
}

// NeedsRefresh reports whether now - LastRefreshed >= ttl, or the cache is empty.
func (c PerformanceCache) NeedsRefresh(now time.Time, ttl time.Duration) bool {
	if c.IsEmpty() {
		return true
	}
	return now.Sub(c.LastRefreshed) >= ttl
}

// WithIdentity returns a copy carrying the given client details.
// Empty fields in details keep the previous values.
func (c PerformanceCache) WithIdentity(details ClientDetails) PerformanceCache {
	if details.ClientKey != "" {
		c.ClientKey = details.ClientKey
	}
	if details.ClientID != "" {
		c.ClientID = details.ClientID
	}
	if details.AccountID != "" {
		c.AccountID = details.AccountID
	}
	if details.Name != "" {
		c.ClientName = details.Name
	}
	return c
}

// WithPerformance returns a copy carrying the figures of a completed performance fetch.
func (c PerformanceCache) WithPerformance(summary PerformanceSummary) PerformanceCache {
	c.AccumulatedProfitLoss = summary.AccumulatedProfitLoss
	if p, ok := summary.Periods[PeriodAllTime]; ok {
		c.AllTimePerformance = p.Percentage()
		if p.HasCashTransferData {
			c.CashTransferBalance = p.LatestCashTransfer
		}
	}
	if p, ok := summary.Periods[PeriodYear]; ok {
		c.YTDPerformance = p.Percentage()
	}
	if p, ok := summary.Periods[PeriodMonth]; ok {
		c.MonthPerformance = p.Percentage()
	}
	if p, ok := summary.Periods[PeriodQuarter]; ok {
		c.QuarterPerformance = p.Percentage()
	}
	return c
}

// NewSnapshot assembles a snapshot from a fresh balance and the current cache.
func NewSnapshot(balance AccountBalance, cache PerformanceCache, now time.Time) *Snapshot {
	name := cache.ClientName
	if name == "" {
		name = UnknownClientName
	}
	return &Snapshot{
		CashBalance:             balance.CashBalance,
		TotalValue:              balance.TotalValue,
		NonMarginPositionsValue: balance.NonMarginPositionsValue,
		Currency:                balance.Currency,
		YTDEarningsPercentage:   cache.YTDPerformance,
		AllTimePerformance:      cache.AllTimePerformance,
		YTDPerformance:          cache.YTDPerformance,
		MonthPerformance:        cache.MonthPerformance,
		QuarterPerformance:      cache.QuarterPerformance,
		AccumulatedProfitLoss:   cache.AccumulatedProfitLoss,
		CashTransferBalance:     cache.CashTransferBalance,
		ClientID:                cache.ClientID,
		AccountID:               cache.AccountID,
		ClientName:              name,
		LastUpdated:             now,
	}
}
