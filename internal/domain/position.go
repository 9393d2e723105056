package domain

import "time"

// PriceHistorySize bounds the per-position ring of recently seen prices.
const PriceHistorySize = 100

// Position is one paper trade in progress plus its execution metadata.
// Created when a signal is accepted; mutated only by the monitor loop;
// removed from the store on close.
type Position struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Direction Direction      `json:"direction"`
	Status    PositionStatus `json:"status"`

	Signal *Signal   `json:"signal"`
	Risk   RiskState `json:"risk"`

	EntryPrice    float64 `json:"entryPrice"` // limit price, replaced by the fill price on fill
	Size          float64 `json:"size"`       // base-asset quantity
	Value         float64 `json:"value"`      // quote value at placement
	RiskAmount    float64 `json:"riskAmount"` // quote amount at risk (balance x risk-per-trade)
	CurrentPrice  float64 `json:"currentPrice"`
	FloatingPnl   float64 `json:"floatingPnl"`
	FloatingPct   float64 `json:"floatingPct"`
	MaxAdversePct float64 `json:"maxAdversePct"`
	MaxFavorPct   float64 `json:"maxFavorPct"`

	// PriceHistory holds the most recent traded prices seen while the
	// position was in flight, newest last, capped at PriceHistorySize.
	PriceHistory []float64 `json:"priceHistory,omitempty"`

	OrderPlacedAt time.Time `json:"orderPlacedAt"`
	FilledAt      time.Time `json:"filledAt"`
	Timeframe     string    `json:"timeframe"`
}

// IsOpen reports whether the position has been filled and is still live.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// IsPending reports whether the position is a resting, unfilled order.
func (p *Position) IsPending() bool {
	return p.Status == StatusPending
}

// Age returns how long ago the order was placed.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OrderPlacedAt)
}

// HoldTime returns how long the position has been open; zero if unfilled.
func (p *Position) HoldTime(now time.Time) time.Duration {
	if p.FilledAt.IsZero() {
		return 0
	}
	return now.Sub(p.FilledAt)
}
