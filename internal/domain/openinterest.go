package domain

// OpenInterestEntry is a market's open interest at one block, in USDC.
type OpenInterestEntry struct {
	MarketID string  `json:"id"`
	Amount   float64 `json:"amount"`
}
