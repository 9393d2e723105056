package paper

import (
	"testing"
	"time"

	"smcPaperBot/internal/domain"

	"github.com/stretchr/testify/assert"
)

func pendingLong(entry, stop float64, placedAt time.Time) *domain.Position {
	sig := &domain.Signal{
		Symbol: "BTCUSDT", Direction: domain.Long,
		Entry: entry, StopLoss: stop, TakeProfit: entry + 2*(entry-stop),
	}
	return &domain.Position{
		ID:            "p1",
		Symbol:        sig.Symbol,
		Direction:     sig.Direction,
		Status:        domain.StatusPending,
		Signal:        sig,
		EntryPrice:    entry,
		OrderPlacedAt: placedAt,
	}
}

func TestEvaluate_FillsAtLimit(t *testing.T) {
	sim := NewOrderFillSimulator(0, 0)
	now := time.Now()
	pos := pendingLong(100, 95, now)

	dec := sim.Evaluate(pos, 100, now)
	assert.True(t, dec.Fill)
	assert.Equal(t, 100.0, dec.FillPrice)

	dec = sim.Evaluate(pos, 99.5, now)
	assert.True(t, dec.Fill, "trading through the limit fills too")
	assert.Equal(t, 100.0, dec.FillPrice, "fill is at the limit price, not the traded price")
}

func TestEvaluate_ShortFillsFromBelow(t *testing.T) {
	sim := NewOrderFillSimulator(0, 0)
	now := time.Now()
	sig := &domain.Signal{
		Symbol: "ETHUSDT", Direction: domain.Short,
		Entry: 200, StopLoss: 210, TakeProfit: 180,
	}
	pos := &domain.Position{
		ID: "p2", Direction: domain.Short, Status: domain.StatusPending,
		Signal: sig, OrderPlacedAt: now,
	}

	assert.False(t, sim.Evaluate(pos, 199, now).Fill)
	assert.True(t, sim.Evaluate(pos, 200.5, now).Fill)
}

func TestEvaluate_CancelRequiresAgeAndDrift(t *testing.T) {
	sim := NewOrderFillSimulator(30*time.Minute, 0.02)
	placed := time.Now()
	pos := pendingLong(100, 95, placed)

	dec := sim.Evaluate(pos, 103, placed.Add(1*time.Minute))
	assert.False(t, dec.Cancel, "a recent order keeps resting regardless of drift")

	dec = sim.Evaluate(pos, 101, placed.Add(31*time.Minute))
	assert.False(t, dec.Cancel, "an old order with price still near the entry keeps resting")

	dec = sim.Evaluate(pos, 101.9, placed.Add(31*time.Minute))
	assert.False(t, dec.Cancel, "1.9% drift is inside the tolerance")

	dec = sim.Evaluate(pos, 102.1, placed.Add(31*time.Minute))
	assert.True(t, dec.Cancel)
	assert.Contains(t, dec.Reason, "away from entry")
}

func TestEvaluate_ShortCancelDriftIsDownward(t *testing.T) {
	sim := NewOrderFillSimulator(30*time.Minute, 0.02)
	placed := time.Now()
	sig := &domain.Signal{
		Symbol: "ETHUSDT", Direction: domain.Short,
		Entry: 200, StopLoss: 210, TakeProfit: 180,
	}
	pos := &domain.Position{
		ID: "p3", Direction: domain.Short, Status: domain.StatusPending,
		Signal: sig, OrderPlacedAt: placed,
	}

	dec := sim.Evaluate(pos, 195, placed.Add(31*time.Minute))
	assert.True(t, dec.Cancel, "price 2.5% below a short entry ran away without filling")

	dec = sim.Evaluate(pos, 197, placed.Add(31*time.Minute))
	assert.False(t, dec.Cancel, "1.5% below is inside the tolerance")
}

func TestEvaluate_IgnoresNonPending(t *testing.T) {
	sim := NewOrderFillSimulator(0, 0)
	pos := pendingLong(100, 95, time.Now())
	pos.Status = domain.StatusOpen

	dec := sim.Evaluate(pos, 100, time.Now())
	assert.False(t, dec.Fill)
	assert.False(t, dec.Cancel)
}
