package analytics

import (
	"math"
	"testing"
	"time"

	"smcPaperBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tradeR(sym string, outcome domain.Outcome, r float64, exitOffset int) *domain.Trade {
	return &domain.Trade{
		Symbol:    sym,
		Direction: domain.Long,
		Timeframe: "1h",
		Outcome:   outcome,
		RMultiple: r,
		ExitTime:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(exitOffset) * time.Hour),
	}
}

func TestCalculate_Basic(t *testing.T) {
	trades := []*domain.Trade{
		tradeR("BTCUSDT", domain.OutcomeTakeProfit, 2, 1),
		tradeR("BTCUSDT", domain.OutcomeTakeProfit, 1, 2),
		tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 3),
		tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 4),
	}

	r := Calculate(trades)
	require.Equal(t, 4, r.TotalTrades)
	assert.Equal(t, 2, r.WinningTrades)
	assert.Equal(t, 2, r.LosingTrades)
	assert.Equal(t, 0.5, r.WinRate)
	assert.InDelta(t, 1.0, r.TotalR, 1e-9)
	assert.InDelta(t, 1.5, r.ProfitFactor, 1e-9)
	assert.InDelta(t, 0.25, r.Expectancy, 1e-9)
	assert.InDelta(t, 1.5, r.AverageWin, 1e-9)
	assert.InDelta(t, -1.0, r.AverageLoss, 1e-9)
	assert.Equal(t, 2.0, r.BestTrade)
	assert.Equal(t, -1.0, r.WorstTrade)
	assert.Equal(t, 2, r.MaxConsecutiveWins)
	assert.Equal(t, 2, r.MaxConsecutiveLosses)
	// Cumulative R goes 2, 3, 2, 1: peak 3, deepest drawdown 2.
	assert.InDelta(t, 2.0, r.MaxDrawdownR, 1e-9)
	assert.InDelta(t, 3.0, r.MaxRunUpR, 1e-9)
	assert.Equal(t, 2, r.Outcomes[domain.OutcomeStopLoss])
}

func TestCalculate_ProfitFactorNoLosses(t *testing.T) {
	r := Calculate([]*domain.Trade{
		tradeR("ETHUSDT", domain.OutcomeTakeProfit, 1.5, 1),
		tradeR("ETHUSDT", domain.OutcomeTakeProfit, 0.5, 2),
	})
	assert.True(t, math.IsInf(r.ProfitFactor, 1))
	assert.Equal(t, 1.0, r.WinRate)
}

func TestCalculate_Empty(t *testing.T) {
	r := Calculate(nil)
	assert.Zero(t, r.TotalTrades)
	assert.Zero(t, r.ProfitFactor)
	assert.Zero(t, r.WinRate)
}

func TestCalculate_SkipsPendingTrades(t *testing.T) {
	r := Calculate([]*domain.Trade{
		tradeR("BTCUSDT", domain.OutcomePending, 0, 1),
		tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 2),
	})
	assert.Equal(t, 1, r.TotalTrades)
}

func TestCalculate_WinBucketIncludesBreakeven(t *testing.T) {
	// Zero-R exits from breakeven or trailing management count as wins.
	r := Calculate([]*domain.Trade{
		tradeR("BTCUSDT", domain.OutcomeBreakevenWin, 0, 1),
		tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 2),
	})
	assert.Equal(t, 1, r.WinningTrades)
	assert.Equal(t, 0.5, r.WinRate)
	// A 0R win adds nothing to gross profit, so the factor stays 0.
	assert.Zero(t, r.ProfitFactor)
}

func TestCalculate_TimeoutRate(t *testing.T) {
	r := Calculate([]*domain.Trade{
		tradeR("BTCUSDT", domain.OutcomeTimeout, 0.2, 1),
		tradeR("BTCUSDT", domain.OutcomeTakeProfit, 2, 2),
		tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 3),
		tradeR("BTCUSDT", domain.OutcomeTimeout, -0.3, 4),
	})
	assert.InDelta(t, 0.5, r.TimeoutRate, 1e-9)
	assert.Equal(t, 2, r.Outcomes[domain.OutcomeTimeout])
}

func TestCalculate_ExpectancyUsesWinLossSplit(t *testing.T) {
	// An expired trade with a negative realized R sits in the win bucket,
	// so the expectation from the split diverges from the plain mean R.
	r := Calculate([]*domain.Trade{
		tradeR("BTCUSDT", domain.OutcomeTakeProfit, 2, 1),
		tradeR("BTCUSDT", domain.OutcomeExpired, -0.4, 2),
		tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 3),
	})
	require.Equal(t, 2, r.WinningTrades)
	require.Equal(t, 1, r.LosingTrades)
	assert.InDelta(t, 2.0, r.AverageWin, 1e-9)
	assert.InDelta(t, -0.7, r.AverageLoss, 1e-9)
	// (2/3)*2.0 - (1/3)*0.7
	assert.InDelta(t, 1.1, r.Expectancy, 1e-9)
	assert.InDelta(t, 0.2, r.AverageR, 1e-9)
}

func TestBySymbol(t *testing.T) {
	by := BySymbol([]*domain.Trade{
		tradeR("BTCUSDT", domain.OutcomeTakeProfit, 2, 1),
		tradeR("ETHUSDT", domain.OutcomeStopLoss, -1, 2),
	})
	require.Len(t, by, 2)
	assert.Equal(t, 1, by["BTCUSDT"].WinningTrades)
	assert.Equal(t, 1, by["ETHUSDT"].LosingTrades)
}

func TestAnalyzeFailures(t *testing.T) {
	nearMiss := tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 1)
	nearMiss.MaxFavorableR = 1.4
	nearMiss.Signal = &domain.Signal{Patterns: []string{"ORDER_BLOCK"}}

	fast := tradeR("BTCUSDT", domain.OutcomeStopLoss, -1, 2)
	fast.MaxFavorableR = 0.1
	fast.Signal = &domain.Signal{Patterns: []string{"ORDER_BLOCK", "FVG"}}

	winner := tradeR("BTCUSDT", domain.OutcomeTakeProfit, 2, 3)

	fr := AnalyzeFailures([]*domain.Trade{nearMiss, fast, winner})
	require.Equal(t, 2, fr.LosingTrades)
	assert.Equal(t, 1, fr.NearMisses)
	assert.Equal(t, 1, fr.FastLosses)
	assert.InDelta(t, -1.0, fr.AverageLossR, 1e-9)
	assert.Equal(t, 2, fr.ByDirection[domain.Long])
	require.NotEmpty(t, fr.ByPattern)
	assert.Equal(t, "ORDER_BLOCK", fr.ByPattern[0].Pattern)
	assert.Equal(t, 2, fr.ByPattern[0].Count)
	assert.InDelta(t, -1.0, fr.ByPattern[0].AverageR(), 1e-9)
	assert.Zero(t, PatternLosses{}.AverageR())
}
