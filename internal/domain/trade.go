package domain

import "time"

// Trade is the immutable record of a completed trade, created only by a
// terminal exit decision.
type Trade struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Timeframe string    `json:"timeframe"`

	Entry    float64 `json:"entry"`
	StopLoss float64 `json:"stopLoss"` // initial stop, not the final effective one

	Outcome   Outcome   `json:"outcome"`
	ExitPrice float64   `json:"exitPrice"`
	ExitTime  time.Time `json:"exitTime"`

	RMultiple  float64 `json:"rMultiple"`  // realized profit in risk-multiples
	PnlPercent float64 `json:"pnlPercent"` // realized return relative to entry
	PnlQuote   float64 `json:"pnlQuote"`   // realized profit in quote currency (paper only)

	BarsInTrade   int     `json:"barsInTrade"`
	MaxAdverseR   float64 `json:"maxAdverseR"`
	MaxFavorableR float64 `json:"maxFavorableR"`

	BreakevenActivated bool `json:"breakevenActivated"`
	TrailingActivated  bool `json:"trailingActivated"`
	PartialClosed      bool `json:"partialClosed"`

	Signal     *Signal   `json:"signal,omitempty"`
	SignalTime time.Time `json:"signalTime"`
	EntryTime  time.Time `json:"entryTime"`
}

// IsWin reports whether the trade lands in the win bucket. A stop exit at or
// above entry (breakeven/trailing) and an expired trade count as wins; this
// mirrors the original reporting convention rather than a universal
// definition of "win".
func (t *Trade) IsWin() bool {
	if t.RMultiple >= 0 {
		return true
	}
	switch t.Outcome {
	case OutcomeTakeProfit, OutcomeTakeProfitPart, OutcomeTakeProfitFull,
		OutcomeTrailingStopWin, OutcomeBreakevenWin, OutcomeExpired:
		return true
	}
	return false
}
