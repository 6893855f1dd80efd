package domain

// Broker-agnostic types for account figures.
// The brokerage client maps its wire responses onto these before the
// coordinator sees them.

// AccountBalance is the mandatory balance block of every poll.
type AccountBalance struct {
	CashBalance             float64 // Free cash
	TotalValue              float64 // Cash plus positions, >= 0
	NonMarginPositionsValue float64 // Value of non-margin positions
	Currency                string  // ISO-4217 account currency
}

// ClientDetails identifies the client behind the token.
type ClientDetails struct {
	ClientKey string // Opaque key required by the performance endpoints
	ClientID  string
	AccountID string // Default account id
	Name      string // Display name
}

// PerformancePeriod is a standard period accepted by the performance endpoints.
type PerformancePeriod string

const (
	PeriodAllTime PerformancePeriod = "AllTime"
	PeriodYear    PerformancePeriod = "Year"
	PeriodMonth   PerformancePeriod = "Month"
	PeriodQuarter PerformancePeriod = "Quarter"
)

// BatchPeriods is the fixed order in which the batched performance fetch runs.
var BatchPeriods = []PerformancePeriod{PeriodAllTime, PeriodYear, PeriodMonth, PeriodQuarter}

// PeriodPerformance is the parsed result of one performance-v4 call.
type PeriodPerformance struct {
	Period              PerformancePeriod
	ReturnFraction      float64 // 0.0523 == 5.23 %
	LatestCashTransfer  float64
	HasCashTransferData bool
}

// Percentage returns the return fraction scaled to percent.
func (p PeriodPerformance) Percentage() float64 {
	return p.ReturnFraction * 100
}

// PerformanceSummary is the combined result of the v3 call plus the v4 batch.
type PerformanceSummary struct {
	AccumulatedProfitLoss float64
	Periods               map[PerformancePeriod]PeriodPerformance
}

// NetPosition is one aggregated position from the net positions endpoint.
type NetPosition struct {
	NetPositionID string  `json:"net_position_id"`
	Symbol        string  `json:"symbol"`
	AssetType     string  `json:"asset_type"`
	Amount        float64 `json:"amount"`
	MarketValue   float64 `json:"market_value"`
	ProfitLoss    float64 `json:"profit_loss"`
	Currency      string  `json:"currency"`
}
