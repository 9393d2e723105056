package exit

import (
	"fmt"
	"math"
	"time"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"
)

// invalidationTolerance is how far beyond the structural band price must
// close before the pattern counts as broken (2%).
const invalidationTolerance = 0.02

// allocationEpsilon bounds the rounding error tolerated when checking that
// take-profit allocations sum to 1.0.
const allocationEpsilon = 1e-6

// Observation is one new price data point. Replay mode supplies a full bar;
// tick mode supplies High = Low = Price.
type Observation struct {
	Price float64 // close / last price
	High  float64
	Low   float64
	Time  time.Time
}

// Tick builds an Observation from a single streamed price.
func Tick(price float64, t time.Time) Observation {
	return Observation{Price: price, High: price, Low: price, Time: t}
}

// Decision is the evaluator's answer for one observation: either "still
// open" (Done == false, the RiskState was updated in place) or a terminal
// outcome.
type Decision struct {
	Done      bool
	Outcome   domain.Outcome
	ExitPrice float64
	ExitTime  time.Time
	RMultiple float64 // banked R plus the remaining fraction's realized R
	Reason    string
}

// Evaluator applies the exit-condition state machine to one trade. It owns
// no storage: the caller passes the RiskState into every Step and keeps it
// between calls. The per-observation order is fixed to avoid ambiguous
// same-bar resolution: excursions, breakeven, partial close, trailing,
// timeout, stop, take-profit, invalidation. Checking the stop before the
// target on the same bar is a deliberate conservative assumption about
// intra-bar price paths; real paths could resolve either way.
type Evaluator struct {
	sig      *domain.Signal
	riskDist float64
	sign     float64
}

// NewEvaluator validates the signal and returns an evaluator for it.
// Malformed signals (stop or target on the wrong side of entry, zero risk
// distance, inconsistent allocations) are rejected here, never mid-loop.
func NewEvaluator(sig *domain.Signal) (*Evaluator, error) {
	if sig == nil {
		return nil, fmt.Errorf("%w: nil signal", ports.ErrInvalidSignal)
	}
	if sig.Direction != domain.Long && sig.Direction != domain.Short {
		return nil, fmt.Errorf("%w: unknown direction %q", ports.ErrInvalidSignal, sig.Direction)
	}
	sign := sig.Direction.Sign()
	rd := sig.RiskDistance()
	if rd <= 0 {
		return nil, fmt.Errorf("%w: zero risk distance (entry %.8f, stop %.8f)", ports.ErrInvalidSignal, sig.Entry, sig.StopLoss)
	}
	if (sig.Entry-sig.StopLoss)*sign <= 0 {
		return nil, fmt.Errorf("%w: stop %.8f on wrong side of entry %.8f for %s", ports.ErrInvalidSignal, sig.StopLoss, sig.Entry, sig.Direction)
	}
	if len(sig.TakeProfits) == 0 {
		if (sig.TakeProfit-sig.Entry)*sign <= 0 {
			return nil, fmt.Errorf("%w: target %.8f on wrong side of entry %.8f for %s", ports.ErrInvalidSignal, sig.TakeProfit, sig.Entry, sig.Direction)
		}
	} else {
		var allocSum float64
		prev := sig.Entry
		for i, lvl := range sig.TakeProfits {
			if (lvl.Price-sig.Entry)*sign <= 0 {
				return nil, fmt.Errorf("%w: target level %d at %.8f on wrong side of entry %.8f", ports.ErrInvalidSignal, i, lvl.Price, sig.Entry)
			}
			if (lvl.Price-prev)*sign <= 0 && i > 0 {
				return nil, fmt.Errorf("%w: target levels not ordered away from entry", ports.ErrInvalidSignal)
			}
			if lvl.Allocation <= 0 {
				return nil, fmt.Errorf("%w: target level %d has non-positive allocation", ports.ErrInvalidSignal, i)
			}
			allocSum += lvl.Allocation
			prev = lvl.Price
		}
		if math.Abs(allocSum-1.0) > allocationEpsilon {
			return nil, fmt.Errorf("%w: target allocations sum to %.6f, want 1.0", ports.ErrInvalidSignal, allocSum)
		}
	}
	if m := sig.Management; m != nil {
		if m.PartialTrigger > 0 && (m.PartialFraction <= 0 || m.PartialFraction >= 1) {
			return nil, fmt.Errorf("%w: partial-close fraction %.4f outside (0,1)", ports.ErrInvalidSignal, m.PartialFraction)
		}
		if m.TrailingStart > 0 && m.TrailingDistance <= 0 {
			return nil, fmt.Errorf("%w: trailing start set without a trailing distance", ports.ErrInvalidSignal)
		}
	}
	return &Evaluator{sig: sig, riskDist: rd, sign: sign}, nil
}

// Signal returns the signal this evaluator was built for.
func (e *Evaluator) Signal() *domain.Signal { return e.sig }

// rOf converts a price to a signed R-multiple relative to entry.
func (e *Evaluator) rOf(price float64) float64 {
	return (price - e.sig.Entry) * e.sign / e.riskDist
}

// Step evaluates one observation, mutating st. It never fails for malformed
// observations inside an ongoing loop.
func (e *Evaluator) Step(st *domain.RiskState, obs Observation) Decision {
	m := e.sig.Management
	st.Bars++

	// 1. Excursions from the intra-bar extremes, direction-aware.
	favPrice, advPrice := obs.High, obs.Low
	if e.sign < 0 {
		favPrice, advPrice = obs.Low, obs.High
	}
	favR := e.rOf(favPrice)
	advR := e.rOf(advPrice)
	if advR < st.MaxAdverseR {
		st.MaxAdverseR = advR
	}
	if favR > st.MaxFavorableR {
		st.MaxFavorableR = favR
	}
	if favR > st.PeakR {
		st.PeakR = favR
	}
	closeR := e.rOf(obs.Price)

	// 2. Breakeven promotion. The stop only ever tightens.
	if m != nil && m.BreakevenTrigger > 0 && !st.BreakevenActivated && closeR >= m.BreakevenTrigger {
		st.BreakevenActivated = true
		if (e.sig.Entry-st.Stop)*e.sign > 0 {
			st.Stop = e.sig.Entry
		}
	}

	// 3. Partial close at the profit milestone.
	if m != nil && m.PartialTrigger > 0 && !st.PartialClosed && closeR >= m.PartialTrigger {
		st.BankedR += m.PartialFraction * closeR
		st.RemainingFraction -= m.PartialFraction
		st.PartialClosed = true
	}

	// 4. Trailing stop follows the peak favorable excursion.
	if m != nil && m.TrailingStart > 0 && st.PeakR >= m.TrailingStart {
		st.TrailingActivated = true
		trail := e.sig.Entry + (st.PeakR-m.TrailingDistance)*e.riskDist*e.sign
		if (trail-st.Stop)*e.sign > 0 {
			st.Stop = trail
		}
	}

	// 5. Timeout: bar budget spent without enough profit.
	if m != nil && m.TimeoutBars > 0 && st.Bars >= m.TimeoutBars && closeR < m.TimeoutMinProfit {
		return e.terminal(st, domain.OutcomeTimeout, obs.Price, obs.Time, closeR,
			fmt.Sprintf("no progress after %d bars", st.Bars))
	}

	// 6. Stop check against the current (possibly promoted/trailed) stop.
	// Evaluated before the target on the same bar.
	if (st.Stop-advPrice)*e.sign >= 0 {
		stopR := e.rOf(st.Stop)
		outcome := domain.OutcomeStopLoss
		if (st.Stop-e.sig.Entry)*e.sign >= 0 {
			if st.TrailingActivated {
				outcome = domain.OutcomeTrailingStopWin
			} else {
				outcome = domain.OutcomeBreakevenWin
			}
		}
		return e.terminal(st, outcome, st.Stop, obs.Time, stopR, "stop hit")
	}

	// 7. Take-profit check. A single bar may sweep several levels.
	if len(e.sig.TakeProfits) == 0 {
		if (favPrice-e.sig.TakeProfit)*e.sign >= 0 {
			return e.terminal(st, domain.OutcomeTakeProfit, e.sig.TakeProfit, obs.Time, e.rOf(e.sig.TakeProfit), "target hit")
		}
	} else {
		for st.LevelsHit < len(e.sig.TakeProfits) {
			lvl := e.sig.TakeProfits[st.LevelsHit]
			if (favPrice-lvl.Price)*e.sign < 0 {
				break
			}
			levelR := lvl.RiskMultiple
			if levelR == 0 {
				levelR = e.rOf(lvl.Price)
			}
			st.LevelsHit++
			if st.LevelsHit == len(e.sig.TakeProfits) {
				// Final level: close everything still open at this level's R.
				st.BankedR += levelR * st.RemainingFraction
				st.RemainingFraction = 0
				return Decision{
					Done: true, Outcome: domain.OutcomeTakeProfitFull,
					ExitPrice: lvl.Price, ExitTime: obs.Time,
					RMultiple: st.BankedR, Reason: "final target level hit",
				}
			}
			closeFrac := math.Min(lvl.Allocation, st.RemainingFraction)
			st.BankedR += levelR * closeFrac
			st.RemainingFraction -= closeFrac
		}
	}

	// 8. Invalidation: close through the structural band against the trade.
	if ob := e.sig.OrderBlock; ob != nil {
		broken := false
		if e.sign > 0 && ob.Bottom > 0 {
			broken = obs.Price < ob.Bottom*(1-invalidationTolerance)
		} else if e.sign < 0 && ob.Top > 0 {
			broken = obs.Price > ob.Top*(1+invalidationTolerance)
		}
		if broken {
			return e.terminal(st, domain.OutcomeInvalidated, obs.Price, obs.Time, closeR, "structural reference broken")
		}
	}

	return Decision{Done: false}
}

// Finish resolves a trade whose observation stream ran out with no terminal
// decision. This is a data-boundary artifact, not a management decision.
func (e *Evaluator) Finish(st *domain.RiskState, lastPrice float64, lastTime time.Time) Decision {
	outcome := domain.OutcomeExpired
	reason := "observation stream exhausted"
	if st.LevelsHit > 0 {
		outcome = domain.OutcomeTakeProfitPart
		reason = fmt.Sprintf("stream ended after %d target level(s)", st.LevelsHit)
	}
	return e.terminal(st, outcome, lastPrice, lastTime, e.rOf(lastPrice), reason)
}

// ForceClose resolves the trade at the given price with an outcome chosen
// by the caller, e.g. a hold-time limit closing a live position.
func (e *Evaluator) ForceClose(st *domain.RiskState, price float64, t time.Time, outcome domain.Outcome, reason string) Decision {
	return e.terminal(st, outcome, price, t, e.rOf(price), reason)
}

// terminal folds the remaining fraction's realized R into the banked R.
func (e *Evaluator) terminal(st *domain.RiskState, outcome domain.Outcome, price float64, t time.Time, exitR float64, reason string) Decision {
	return Decision{
		Done:      true,
		Outcome:   outcome,
		ExitPrice: price,
		ExitTime:  t,
		RMultiple: st.BankedR + exitR*st.RemainingFraction,
		Reason:    reason,
	}
}

// BuildTrade assembles the immutable trade record for a terminal decision.
// Shared by the backtest and paper-trading drivers so both report
// identically.
func BuildTrade(sig *domain.Signal, st *domain.RiskState, dec Decision) *domain.Trade {
	sign := sig.Direction.Sign()
	pnlPct := (dec.ExitPrice - sig.Entry) * sign / sig.Entry * 100
	return &domain.Trade{
		Symbol:             sig.Symbol,
		Direction:          sig.Direction,
		Timeframe:          sig.Timeframe,
		Entry:              sig.Entry,
		StopLoss:           sig.StopLoss,
		Outcome:            dec.Outcome,
		ExitPrice:          dec.ExitPrice,
		ExitTime:           dec.ExitTime,
		RMultiple:          dec.RMultiple,
		PnlPercent:         pnlPct,
		BarsInTrade:        st.Bars,
		MaxAdverseR:        st.MaxAdverseR,
		MaxFavorableR:      st.MaxFavorableR,
		BreakevenActivated: st.BreakevenActivated,
		TrailingActivated:  st.TrailingActivated,
		PartialClosed:      st.PartialClosed,
		Signal:             sig,
		SignalTime:         sig.AnchorTime,
	}
}
