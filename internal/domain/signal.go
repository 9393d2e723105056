package domain

import "time"

// PriceBand is a structural price reference (e.g. the order block that
// justified the entry). A close beyond the band against the trade's
// direction invalidates the signal.
type PriceBand struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// TakeProfitLevel is one level of a multi-level take-profit ladder.
type TakeProfitLevel struct {
	Price        float64 `json:"price"`        // target price for this level
	RiskMultiple float64 `json:"riskMultiple"` // profit at this level expressed in R
	Allocation   float64 `json:"allocation"`   // fraction of the position closed here
}

// ManagementProfile configures optional in-trade management rules.
// Zero values disable the corresponding rule.
type ManagementProfile struct {
	BreakevenTrigger float64 `json:"breakevenTrigger"` // R at which the stop moves to entry
	TrailingStart    float64 `json:"trailingStart"`    // peak R at which trailing begins
	TrailingDistance float64 `json:"trailingDistance"` // trail distance behind the peak, in R
	PartialTrigger   float64 `json:"partialTrigger"`   // R at which a partial close fires
	PartialFraction  float64 `json:"partialFraction"`  // fraction closed by the partial
	TimeoutBars      int     `json:"timeoutBars"`      // bar budget before the timeout check
	TimeoutMinProfit float64 `json:"timeoutMinProfit"` // R required to survive the timeout
}

// Signal is a proposed trade produced by the external pattern analyzer.
// The engine never interprets how it was found.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Entry     float64   `json:"entry"`
	StopLoss  float64   `json:"stopLoss"`

	// TakeProfit is the single target. TakeProfits, when non-empty, replaces
	// it with an ordered ladder of levels whose allocations sum to 1.0.
	TakeProfit  float64           `json:"takeProfit"`
	TakeProfits []TakeProfitLevel `json:"takeProfits,omitempty"`

	OrderBlock *PriceBand         `json:"orderBlock,omitempty"` // invalidation reference
	Management *ManagementProfile `json:"management,omitempty"`

	RiskReward float64   `json:"riskReward"`
	Confluence float64   `json:"confluence"`
	Patterns   []string  `json:"patterns,omitempty"`
	Timeframe  string    `json:"timeframe"`
	AnchorTime time.Time `json:"anchorTime"` // close time of the bar the signal was generated on
}

// RiskDistance returns |entry - stop|, the denominator of every R-multiple.
func (s *Signal) RiskDistance() float64 {
	d := s.Entry - s.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// IsLong reports whether the signal is a long trade.
func (s *Signal) IsLong() bool {
	return s.Direction == Long
}
