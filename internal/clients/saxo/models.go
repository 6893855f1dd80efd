package saxo

// Wire shapes of the OpenAPI responses. Pointer fields distinguish
// "missing" from zero so validation can reject incomplete payloads.

type balanceResponse struct {
	CashBalance             *float64 `json:"CashBalance"`
	Currency                *string  `json:"Currency"`
	TotalValue              *float64 `json:"TotalValue"`
	NonMarginPositionsValue *float64 `json:"NonMarginPositionsValue"`
}

type clientDetailsResponse struct {
	ClientKey        string `json:"ClientKey"`
	ClientID         string `json:"ClientId"`
	DefaultAccountID string `json:"DefaultAccountId"`
	Name             string `json:"Name"`
}

type performanceV3Response struct {
	BalancePerformance *struct {
		AccumulatedProfitLoss *float64 `json:"AccumulatedProfitLoss"`
	} `json:"BalancePerformance"`
}

type cashTransfer struct {
	Date  string  `json:"Date"`
	Value float64 `json:"Value"`
}

type performanceV4Response struct {
	KeyFigures *struct {
		ReturnFraction *float64 `json:"ReturnFraction"`
	} `json:"KeyFigures"`
	Balance *struct {
		CashTransfer []cashTransfer `json:"CashTransfer"`
	} `json:"Balance"`
}

type netPositionsResponse struct {
	Data []struct {
		NetPositionID   string `json:"NetPositionId"`
		NetPositionBase struct {
			Amount    float64 `json:"Amount"`
			AssetType string  `json:"AssetType"`
		} `json:"NetPositionBase"`
		NetPositionView struct {
			MarketValue       float64 `json:"MarketValue"`
			ProfitLossOnTrade float64 `json:"ProfitLossOnTrade"`
		} `json:"NetPositionView"`
		DisplayAndFormat struct {
			Symbol   string `json:"Symbol"`
			Currency string `json:"Currency"`
		} `json:"DisplayAndFormat"`
	} `json:"Data"`
}
