package backtesting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

// mockSource returns its canned signals for every analyzed window and
// records what it was shown.
type mockSource struct {
	mu       sync.Mutex
	signals  []*domain.Signal
	err      error
	calls    int
	htfSizes []int
}

func (m *mockSource) Analyze(_ context.Context, _ string, _ string, _ []*domain.Kline, htf []*domain.Kline) ([]*domain.Signal, error) {
	m.mu.Lock()
	m.calls++
	m.htfSizes = append(m.htfSizes, len(htf))
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.signals, nil
}

// flatKlines builds a series of hourly bars at a constant price.
func flatKlines(n int, price float64) []*domain.Kline {
	ks := make([]*domain.Kline, n)
	for i := range ks {
		open := baseTime.Add(time.Duration(i) * time.Hour)
		ks[i] = &domain.Kline{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour),
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			Open:      price, High: price, Low: price, Close: price,
			IsFinal: true,
		}
	}
	return ks
}

func testRunner(t *testing.T, src ports.SignalSource) *Runner {
	t.Helper()
	r, err := NewRunner(Config{
		Timeframe:   "1h",
		WindowSize:  20,
		StepSize:    10,
		Lookforward: 30,
		Workers:     2,
	}, src, nopLogger{})
	require.NoError(t, err)
	return r
}

func TestNewRunner_RequiresSource(t *testing.T) {
	_, err := NewRunner(Config{}, nil, nopLogger{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestRun_InsufficientData(t *testing.T) {
	r := testRunner(t, &mockSource{})
	_, err := r.Run(context.Background(), "BTCUSDT", SymbolData{Klines: flatKlines(30, 100)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrInsufficientData)
}

func TestRun_SimulatesSignalToTarget(t *testing.T) {
	ks := flatKlines(80, 100)
	// Anchor at bar 10, then a rally through the 110 target at bar 15.
	for i := 13; i < 80; i++ {
		ks[i].High = 112
		ks[i].Close = 111
		ks[i].Low = 99
	}
	sig := &domain.Signal{
		Symbol: "BTCUSDT", Direction: domain.Long,
		Entry: 100, StopLoss: 95, TakeProfit: 110,
		AnchorTime: ks[10].CloseTime,
	}
	src := &mockSource{signals: []*domain.Signal{sig}}
	r := testRunner(t, src)

	res, err := r.Run(context.Background(), "BTCUSDT", SymbolData{Klines: ks})
	require.NoError(t, err)

	// The same anchor reappears in overlapping windows but simulates once.
	assert.Equal(t, 1, res.SignalsFound)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, domain.OutcomeTakeProfit, tr.Outcome)
	assert.InDelta(t, 2.0, tr.RMultiple, 1e-9)
	assert.Equal(t, "1h", tr.Timeframe)
	assert.Equal(t, ks[10].CloseTime, tr.EntryTime)
	require.NotNil(t, res.Report)
	assert.Equal(t, 1, res.Report.TotalTrades)
}

func TestRun_ExpiresWhenLookforwardEnds(t *testing.T) {
	ks := flatKlines(80, 100)
	sig := &domain.Signal{
		Symbol: "BTCUSDT", Direction: domain.Long,
		Entry: 100, StopLoss: 95, TakeProfit: 200,
		AnchorTime: ks[5].CloseTime,
	}
	r := testRunner(t, &mockSource{signals: []*domain.Signal{sig}})

	res, err := r.Run(context.Background(), "BTCUSDT", SymbolData{Klines: ks})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.OutcomeExpired, res.Trades[0].Outcome)
	assert.LessOrEqual(t, res.Trades[0].BarsInTrade, 30)
}

func TestRun_SkipsUnlocatableAnchor(t *testing.T) {
	ks := flatKlines(60, 100)
	sig := &domain.Signal{
		Symbol: "BTCUSDT", Direction: domain.Long,
		Entry: 100, StopLoss: 95, TakeProfit: 110,
		AnchorTime: baseTime.Add(30 * time.Minute), // between bars
	}
	r := testRunner(t, &mockSource{signals: []*domain.Signal{sig}})

	res, err := r.Run(context.Background(), "BTCUSDT", SymbolData{Klines: ks})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SignalsFound)
	assert.Equal(t, 1, res.SignalsSkipped)
	assert.Empty(t, res.Trades)
}

func TestRun_LocatesExchangeStyleCloseTimes(t *testing.T) {
	// Exchange klines close one millisecond before the next bar opens, so a
	// close-time anchor never coincides with any bar's open time.
	ks := flatKlines(80, 100)
	for _, k := range ks {
		k.CloseTime = k.OpenTime.Add(time.Hour - time.Millisecond)
	}
	for i := 13; i < 80; i++ {
		ks[i].High = 112
		ks[i].Close = 111
	}
	sig := &domain.Signal{
		Symbol: "BTCUSDT", Direction: domain.Long,
		Entry: 100, StopLoss: 95, TakeProfit: 110,
		AnchorTime: ks[10].CloseTime,
	}
	r := testRunner(t, &mockSource{signals: []*domain.Signal{sig}})

	res, err := r.Run(context.Background(), "BTCUSDT", SymbolData{Klines: ks})
	require.NoError(t, err)
	assert.Zero(t, res.SignalsSkipped)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.OutcomeTakeProfit, res.Trades[0].Outcome)
	assert.Equal(t, ks[10].CloseTime, res.Trades[0].EntryTime)
}

func TestRun_AnalyzerErrorsDegradePerWindow(t *testing.T) {
	src := &mockSource{err: errors.New("analyzer down")}
	r := testRunner(t, src)

	res, err := r.Run(context.Background(), "BTCUSDT", SymbolData{Klines: flatKlines(60, 100)})
	require.NoError(t, err)
	assert.Positive(t, res.WindowErrors)
	assert.Empty(t, res.Trades)
}

func TestRun_HTFNeverLeaksFutureBars(t *testing.T) {
	ks := flatKlines(60, 100)
	// One 4h bar per 4 primary bars, same clock.
	htf := make([]*domain.Kline, 0, 15)
	for i := 0; i < 60; i += 4 {
		open := baseTime.Add(time.Duration(i) * time.Hour)
		htf = append(htf, &domain.Kline{
			OpenTime: open, CloseTime: open.Add(4 * time.Hour),
			Open: 100, High: 100, Low: 100, Close: 100,
		})
	}
	src := &mockSource{}
	r := testRunner(t, src)

	_, err := r.Run(context.Background(), "BTCUSDT", SymbolData{Klines: ks, HTF: htf})
	require.NoError(t, err)
	// First window ends at hour 20: exactly 5 closed 4h bars, never 6.
	require.NotEmpty(t, src.htfSizes)
	assert.Equal(t, 5, src.htfSizes[0])
	for _, n := range src.htfSizes {
		assert.LessOrEqual(t, n, 15)
	}
}

func TestRunAll_DegradesFailedSymbols(t *testing.T) {
	ks := flatKlines(80, 100)
	r := testRunner(t, &mockSource{})

	results := r.RunAll(context.Background(), map[string]SymbolData{
		"BTCUSDT": {Klines: ks},
		"ETHUSDT": {Klines: flatKlines(10, 100)}, // too short
	})
	require.Len(t, results, 2)
	assert.Equal(t, "BTCUSDT", results[0].Symbol)
	require.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.Empty(t, results[1].Trades)
	assert.NotNil(t, results[1].Report)
}

func TestHigherTimeframe(t *testing.T) {
	htf, ok := domain.HigherTimeframe("1h")
	require.True(t, ok)
	assert.Equal(t, "4h", htf)

	_, ok = domain.HigherTimeframe("3m")
	assert.False(t, ok)
}
