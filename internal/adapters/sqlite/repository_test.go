package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"smcPaperBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: nopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func samplePosition(id string) *domain.Position {
	sig := &domain.Signal{
		Symbol: "BTCUSDT", Direction: domain.Long,
		Entry: 100, StopLoss: 95, TakeProfit: 110,
		OrderBlock: &domain.PriceBand{Top: 99, Bottom: 98},
		Management: &domain.ManagementProfile{BreakevenTrigger: 1},
		Timeframe:  "1h",
		AnchorTime: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
	}
	return &domain.Position{
		ID:            id,
		Symbol:        "BTCUSDT",
		Direction:     domain.Long,
		Status:        domain.StatusPending,
		Signal:        sig,
		Risk:          domain.NewRiskState(sig),
		EntryPrice:    100,
		Size:          4,
		Value:         400,
		RiskAmount:    20,
		OrderPlacedAt: time.Date(2024, 7, 1, 10, 5, 0, 0, time.UTC),
		Timeframe:     "1h",
	}
}

func TestPositionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	pos := samplePosition("BTCUSDT-1")
	require.NoError(t, repo.SavePosition(ctx, pos))

	loaded, err := repo.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, pos.Size, got.Size)
	require.NotNil(t, got.Signal)
	assert.Equal(t, pos.Signal.Entry, got.Signal.Entry)
	require.NotNil(t, got.Signal.OrderBlock)
	assert.Equal(t, 98.0, got.Signal.OrderBlock.Bottom)
	assert.Equal(t, 95.0, got.Risk.Stop)
	assert.True(t, got.FilledAt.IsZero())

	// Save is an upsert: a fill updates in place.
	pos.Status = domain.StatusOpen
	pos.FilledAt = time.Date(2024, 7, 1, 10, 30, 0, 0, time.UTC)
	pos.Risk.Bars = 3
	require.NoError(t, repo.SavePosition(ctx, pos))
	loaded, err = repo.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, domain.StatusOpen, loaded[0].Status)
	assert.Equal(t, 3, loaded[0].Risk.Bars)
	assert.False(t, loaded[0].FilledAt.IsZero())

	require.NoError(t, repo.DeletePosition(ctx, pos.ID))
	loaded, err = repo.LoadPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func sampleTrade(symbol string, exitTime time.Time, r float64) *domain.Trade {
	return &domain.Trade{
		Symbol:    symbol,
		Direction: domain.Long,
		Timeframe: "1h",
		Entry:     100,
		StopLoss:  95,
		Outcome:   domain.OutcomeTakeProfit,
		ExitPrice: 110,
		ExitTime:  exitTime,
		RMultiple: r,
		Signal:    &domain.Signal{Symbol: symbol, Direction: domain.Long, Entry: 100, StopLoss: 95, TakeProfit: 110},
	}
}

func TestTradeHistory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	id1, err := repo.CreateTrade(ctx, sampleTrade("BTCUSDT", base.Add(1*time.Hour), 1))
	require.NoError(t, err)
	id2, err := repo.CreateTrade(ctx, sampleTrade("ETHUSDT", base.Add(2*time.Hour), 2))
	require.NoError(t, err)
	_, err = repo.CreateTrade(ctx, sampleTrade("BTCUSDT", base.Add(3*time.Hour), 3))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	all, err := repo.FindTrades(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Oldest first.
	assert.Equal(t, 1.0, all[0].RMultiple)
	assert.Equal(t, 3.0, all[2].RMultiple)
	require.NotNil(t, all[0].Signal)
	assert.Equal(t, 100.0, all[0].Signal.Entry)

	// Limit keeps the most recent trades.
	recent, err := repo.FindTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2.0, recent[0].RMultiple)
	assert.Equal(t, 3.0, recent[1].RMultiple)

	btc, err := repo.FindTradesBySymbol(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, btc, 2)
	assert.Equal(t, 1.0, btc[0].RMultiple)
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	acct, err := repo.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Nil(t, acct, "fresh database has no account")

	saved := &domain.Account{
		Balance:        115,
		InitialBalance: 100,
		Equity:         115,
		PeakBalance:    120,
		MaxDrawdown:    10,
		MaxDrawdownPct: 0.1,
		TotalPnl:       15,
		TotalPnlPct:    15,
		CreatedAt:      time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		LastTrade:      time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.SaveAccount(ctx, saved))

	loaded, err := repo.LoadAccount(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.Balance, loaded.Balance)
	assert.Equal(t, saved.MaxDrawdownPct, loaded.MaxDrawdownPct)
	assert.True(t, saved.LastTrade.Equal(loaded.LastTrade))

	// Upsert keeps a single row.
	saved.Balance = 90
	require.NoError(t, repo.SaveAccount(ctx, saved))
	loaded, err = repo.LoadAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90.0, loaded.Balance)
}
