package domain

// RiskState is the mutable in-trade state owned by the caller of the exit
// evaluator. The stop only ever moves in the favorable direction and the
// remaining fraction only decreases.
type RiskState struct {
	Stop              float64 `json:"stop"`              // current effective stop price
	RemainingFraction float64 `json:"remainingFraction"` // open fraction of the original size
	BankedR           float64 `json:"bankedR"`           // R already realized by partial closes
	PeakR             float64 `json:"peakR"`             // peak favorable excursion, in R
	MaxAdverseR       float64 `json:"maxAdverseR"`       // worst excursion, in R (<= 0)
	MaxFavorableR     float64 `json:"maxFavorableR"`     // best excursion, in R (>= 0)

	BreakevenActivated bool `json:"breakevenActivated"`
	TrailingActivated  bool `json:"trailingActivated"`
	PartialClosed      bool `json:"partialClosed"`
	LevelsHit          int  `json:"levelsHit"` // take-profit levels filled so far
	Bars               int  `json:"bars"`      // observations consumed
}

// NewRiskState returns the initial state for a freshly accepted signal.
func NewRiskState(sig *Signal) RiskState {
	return RiskState{
		Stop:              sig.StopLoss,
		RemainingFraction: 1.0,
	}
}
