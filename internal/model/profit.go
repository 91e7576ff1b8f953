package model

// ProfitResult holds resale metrics in fixed-point basis points
// (1 bp = 0.01%). Metrics against optional reference prices are nil when
// that reference is absent; they are never imputed from the average.
type ProfitResult struct {
	DiscountBp            int64  `json:"discount_bp"`
	ProfitBp              int64  `json:"profit_bp"`
	ExpectedGainUSD       int64  `json:"expected_gain_usd"` // minor units
	MarketPriceUSD        int64  `json:"market_price_usd"`
	SteamAveragePriceUSD  int64  `json:"steam_average_price_usd"`
	LastSalePrice         *int64 `json:"last_sale_price,omitempty"`
	LowestBuyOrderPrice   *int64 `json:"lowest_buy_order_price,omitempty"`
	ProfitBpVsLastSale    *int64 `json:"profit_bp_vs_last_sale,omitempty"`
	ProfitBpVsLowestOrder *int64 `json:"profit_bp_vs_lowest_buy_order,omitempty"`
}
