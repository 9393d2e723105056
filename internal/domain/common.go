package domain

// Direction represents the direction of a trade (long or short).
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for long trades and -1 for short trades.
// Price deltas multiplied by Sign are positive when favorable.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// PositionStatus represents the lifecycle status of a paper position.
type PositionStatus string

const (
	StatusPending PositionStatus = "PENDING" // limit order placed, not yet filled
	StatusOpen    PositionStatus = "OPEN"    // order filled, position live
	StatusClosed  PositionStatus = "CLOSED"  // terminal, removed from the store
)

// Outcome indicates how a simulated or paper trade ended.
type Outcome string

const (
	OutcomePending Outcome = "PENDING" // still open, the only non-terminal state

	OutcomeStopLoss        Outcome = "STOP_LOSS"
	OutcomeTrailingStopWin Outcome = "TRAILING_STOP_WIN" // stop exit at/above entry after trailing
	OutcomeBreakevenWin    Outcome = "BREAKEVEN_WIN"     // stop exit at/above entry after promotion
	OutcomeTakeProfit      Outcome = "TAKE_PROFIT"
	OutcomeTakeProfitPart  Outcome = "TAKE_PROFIT_PARTIAL" // intermediate level hit, stream ended
	OutcomeTakeProfitFull  Outcome = "TAKE_PROFIT_FULL"    // final level of a multi-level target
	OutcomeInvalidated     Outcome = "INVALIDATED"         // structural reference broken
	OutcomeTimeout         Outcome = "TIMEOUT"             // time budget exceeded without profit
	OutcomeExpired         Outcome = "EXPIRED"             // observation stream exhausted
	OutcomeCancelled       Outcome = "CANCELLED"           // pending order never filled
)

// Terminal reports whether the outcome ends a trade.
func (o Outcome) Terminal() bool {
	return o != OutcomePending && o != ""
}
