package analytics

import (
	"math"
	"sort"
	"time"

	"smcPaperBot/internal/domain"
)

// Report holds aggregate statistics for a set of finished trades. All
// profit figures are R-multiples so results compare across symbols and
// position sizes.
type Report struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`

	TotalR      float64 `json:"totalR"`
	AverageR    float64 `json:"averageR"`
	AverageWin  float64 `json:"averageWinR"`
	AverageLoss float64 `json:"averageLossR"`
	BestTrade   float64 `json:"bestTradeR"`
	WorstTrade  float64 `json:"worstTradeR"`

	// ProfitFactor is gross positive R over gross negative R. With wins
	// and no losses it is +Inf; with no trades or no wins it is 0.
	ProfitFactor float64 `json:"profitFactor"`
	Expectancy   float64 `json:"expectancy"`

	// MaxDrawdownR and MaxRunUpR are measured on the cumulative R curve
	// in trade order.
	MaxDrawdownR float64 `json:"maxDrawdownR"`
	MaxRunUpR    float64 `json:"maxRunUpR"`

	MaxConsecutiveWins   int `json:"maxConsecutiveWins"`
	MaxConsecutiveLosses int `json:"maxConsecutiveLosses"`

	AverageBarsInTrade float64 `json:"averageBarsInTrade"`
	AverageAdverseR    float64 `json:"averageAdverseR"`
	AverageFavorableR  float64 `json:"averageFavorableR"`

	// How often each management feature fired, as fractions of all trades.
	BreakevenRate    float64 `json:"breakevenRate"`
	TrailingRate     float64 `json:"trailingRate"`
	PartialCloseRate float64 `json:"partialCloseRate"`
	TimeoutRate      float64 `json:"timeoutRate"`

	Outcomes    map[domain.Outcome]int `json:"outcomes"`
	EquityCurve []EquityPoint          `json:"equityCurve,omitempty"`
}

// EquityPoint is one step of the cumulative R curve.
type EquityPoint struct {
	Time       time.Time `json:"time"`
	Cumulative float64   `json:"cumulative"`
	Drawdown   float64   `json:"drawdown"`
}

// Calculate aggregates trades into a Report. Pending trades (no terminal
// outcome yet) are skipped. The input slice is not modified.
func Calculate(trades []*domain.Trade) *Report {
	r := &Report{Outcomes: make(map[domain.Outcome]int)}

	finished := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Outcome.Terminal() {
			finished = append(finished, t)
		}
	}
	if len(finished) == 0 {
		return r
	}
	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].ExitTime.Before(finished[j].ExitTime)
	})

	var grossWin, grossLoss float64
	var posTrades, negTrades int
	var sumBars int
	var sumAdverse, sumFavorable float64
	var consecWins, consecLosses int
	// The cumulative R curve starts at zero before the first trade.
	var cumulative, peak, trough float64

	r.BestTrade = math.Inf(-1)
	r.WorstTrade = math.Inf(1)

	for _, t := range finished {
		r.TotalTrades++
		r.Outcomes[t.Outcome]++
		r.TotalR += t.RMultiple
		sumBars += t.BarsInTrade
		sumAdverse += t.MaxAdverseR
		sumFavorable += t.MaxFavorableR

		if t.RMultiple > r.BestTrade {
			r.BestTrade = t.RMultiple
		}
		if t.RMultiple < r.WorstTrade {
			r.WorstTrade = t.RMultiple
		}

		if t.IsWin() {
			r.WinningTrades++
			consecWins++
			consecLosses = 0
		} else {
			r.LosingTrades++
			consecLosses++
			consecWins = 0
		}
		if consecWins > r.MaxConsecutiveWins {
			r.MaxConsecutiveWins = consecWins
		}
		if consecLosses > r.MaxConsecutiveLosses {
			r.MaxConsecutiveLosses = consecLosses
		}

		switch {
		case t.RMultiple > 0:
			grossWin += t.RMultiple
			posTrades++
		case t.RMultiple < 0:
			grossLoss += -t.RMultiple
			negTrades++
		}

		if t.BreakevenActivated {
			r.BreakevenRate++
		}
		if t.TrailingActivated {
			r.TrailingRate++
		}
		if t.PartialClosed {
			r.PartialCloseRate++
		}

		cumulative += t.RMultiple
		if cumulative > peak {
			peak = cumulative
		}
		if cumulative < trough {
			trough = cumulative
		}
		if dd := peak - cumulative; dd > r.MaxDrawdownR {
			r.MaxDrawdownR = dd
		}
		if ru := cumulative - trough; ru > r.MaxRunUpR {
			r.MaxRunUpR = ru
		}
		r.EquityCurve = append(r.EquityCurve, EquityPoint{
			Time:       t.ExitTime,
			Cumulative: cumulative,
			Drawdown:   peak - cumulative,
		})
	}

	n := float64(r.TotalTrades)
	r.WinRate = float64(r.WinningTrades) / n
	r.AverageR = r.TotalR / n
	r.AverageBarsInTrade = float64(sumBars) / n
	r.AverageAdverseR = sumAdverse / n
	r.AverageFavorableR = sumFavorable / n
	r.BreakevenRate /= n
	r.TrailingRate /= n
	r.PartialCloseRate /= n
	r.TimeoutRate = float64(r.Outcomes[domain.OutcomeTimeout]) / n

	if posTrades > 0 {
		r.AverageWin = grossWin / float64(posTrades)
	}
	if negTrades > 0 {
		r.AverageLoss = -grossLoss / float64(negTrades)
	}
	// Expectancy = winRate x avgWin - lossRate x avgLoss. The rate comes
	// from the outcome classification while the averages come from the
	// sign of realized R, so a winning outcome that closed below entry
	// pulls this away from the plain mean R.
	r.Expectancy = r.WinRate*r.AverageWin - (1-r.WinRate)*math.Abs(r.AverageLoss)
	switch {
	case grossLoss > 0:
		r.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		r.ProfitFactor = math.Inf(1)
	}
	return r
}

// BySymbol groups trades per symbol and reports each group separately.
func BySymbol(trades []*domain.Trade) map[string]*Report {
	groups := make(map[string][]*domain.Trade)
	for _, t := range trades {
		groups[t.Symbol] = append(groups[t.Symbol], t)
	}
	out := make(map[string]*Report, len(groups))
	for sym, ts := range groups {
		out[sym] = Calculate(ts)
	}
	return out
}

// ByTimeframe groups trades per signal timeframe.
func ByTimeframe(trades []*domain.Trade) map[string]*Report {
	groups := make(map[string][]*domain.Trade)
	for _, t := range trades {
		groups[t.Timeframe] = append(groups[t.Timeframe], t)
	}
	out := make(map[string]*Report, len(groups))
	for tf, ts := range groups {
		out[tf] = Calculate(ts)
	}
	return out
}
