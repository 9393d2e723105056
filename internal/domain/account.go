package domain

import "time"

// Account is the virtual trading account. Balance changes only when a trade
// closes; equity is recomputed on every monitor tick and is not persisted
// tick-by-tick.
type Account struct {
	Balance        float64 `json:"balance"`
	InitialBalance float64 `json:"initialBalance"`
	Equity         float64 `json:"equity"`
	PeakBalance    float64 `json:"peakBalance"`

	MaxDrawdown    float64 `json:"maxDrawdown"`    // absolute, from peak
	MaxDrawdownPct float64 `json:"maxDrawdownPct"` // as a fraction of peak

	TotalPnl    float64 `json:"totalPnl"`
	TotalPnlPct float64 `json:"totalPnlPct"`

	CreatedAt time.Time `json:"createdAt"`
	LastTrade time.Time `json:"lastTrade"`
}
