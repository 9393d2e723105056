package paper

import (
	"fmt"
	"time"

	"smcPaperBot/internal/domain"
)

// Fill rules for resting paper orders. An unfilled order is abandoned once
// it has been waiting too long or price has run too far from the entry.
const (
	DefaultMaxOrderAge    = 30 * time.Minute
	DefaultAdverseFraction = 0.02
)

// FillDecision is the simulator's verdict for one pending order at one
// observed price.
type FillDecision struct {
	Fill      bool
	Cancel    bool
	FillPrice float64
	Reason    string
}

// OrderFillSimulator decides when resting limit orders fill or expire.
// It is stateless; the pending position carries all the state it needs.
type OrderFillSimulator struct {
	maxAge  time.Duration
	adverse float64
}

// NewOrderFillSimulator applies defaults for zero parameters.
func NewOrderFillSimulator(maxAge time.Duration, adverseFraction float64) *OrderFillSimulator {
	if maxAge <= 0 {
		maxAge = DefaultMaxOrderAge
	}
	if adverseFraction <= 0 {
		adverseFraction = DefaultAdverseFraction
	}
	return &OrderFillSimulator{maxAge: maxAge, adverse: adverseFraction}
}

// Evaluate checks one pending order against the latest price. Limit
// semantics: a long fills when price trades at or below the entry, a short
// at or above. The order cancels only once it has outlived the minimum age
// AND price has run away from the entry by the adverse fraction; a recent
// order keeps resting, and so does an old one that price stayed near.
func (o *OrderFillSimulator) Evaluate(pos *domain.Position, price float64, now time.Time) FillDecision {
	if !pos.IsPending() {
		return FillDecision{}
	}
	sign := pos.Direction.Sign()
	entry := pos.Signal.Entry

	if (entry-price)*sign >= 0 {
		return FillDecision{Fill: true, FillPrice: entry, Reason: "limit price reached"}
	}
	if age := pos.Age(now); age >= o.maxAge {
		if drift := (price - entry) * sign / entry; drift >= o.adverse {
			return FillDecision{Cancel: true, Reason: fmt.Sprintf(
				"price ran %.2f%% away from entry over %s without filling",
				drift*100, age.Round(time.Minute))}
		}
	}
	return FillDecision{}
}
