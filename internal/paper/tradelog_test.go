package paper

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"smcPaperBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTradeRepo struct {
	trades []*domain.Trade
	nextID int64
}

func (m *memTradeRepo) CreateTrade(_ context.Context, trade *domain.Trade) (int64, error) {
	m.nextID++
	cp := *trade
	cp.ID = m.nextID
	m.trades = append(m.trades, &cp)
	return m.nextID, nil
}

func (m *memTradeRepo) FindTrades(_ context.Context, limit int) ([]*domain.Trade, error) {
	out := m.trades
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	cps := make([]*domain.Trade, len(out))
	for i, tr := range out {
		cp := *tr
		cps[i] = &cp
	}
	return cps, nil
}

func (m *memTradeRepo) FindTradesBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	var matched []*domain.Trade
	for _, tr := range m.trades {
		if tr.Symbol == symbol {
			matched = append(matched, tr)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func loggedTrade(outcome domain.Outcome, r float64) *domain.Trade {
	return &domain.Trade{
		Symbol:    "BTCUSDT",
		Direction: domain.Long,
		Outcome:   outcome,
		RMultiple: r,
		ExitTime:  time.Unix(1000, 0),
	}
}

func TestTradeLogger_RecordAndStreaks(t *testing.T) {
	ctx := context.Background()
	repo := &memTradeRepo{}
	tl := NewTradeLogger(repo, nopLogger{}, 0)

	require.NoError(t, tl.Record(ctx, loggedTrade(domain.OutcomeTakeProfit, 2)))
	require.NoError(t, tl.Record(ctx, loggedTrade(domain.OutcomeTakeProfit, 1)))
	require.NoError(t, tl.Record(ctx, loggedTrade(domain.OutcomeStopLoss, -1)))

	st := tl.Streaks()
	assert.Equal(t, 0, st.CurrentWins)
	assert.Equal(t, 1, st.CurrentLosses)
	assert.Equal(t, 2, st.BestWins)
	assert.Equal(t, 1, st.WorstLosses)

	trades := tl.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, int64(1), trades[0].ID, "repository ID propagates to the record")
	assert.Len(t, repo.trades, 3)
}

func TestTradeLogger_CapEvictsOldest(t *testing.T) {
	ctx := context.Background()
	tl := NewTradeLogger(nil, nopLogger{}, 3)

	for i := 0; i < 5; i++ {
		r := float64(i)
		require.NoError(t, tl.Record(ctx, loggedTrade(domain.OutcomeTakeProfit, r)))
	}
	trades := tl.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, 2.0, trades[0].RMultiple)
	assert.Equal(t, 4.0, trades[2].RMultiple)
}

func TestTradeLogger_LoadReplaysStreaks(t *testing.T) {
	ctx := context.Background()
	repo := &memTradeRepo{}
	warm := NewTradeLogger(repo, nopLogger{}, 0)
	require.NoError(t, warm.Record(ctx, loggedTrade(domain.OutcomeStopLoss, -1)))
	require.NoError(t, warm.Record(ctx, loggedTrade(domain.OutcomeStopLoss, -1)))

	restarted := NewTradeLogger(repo, nopLogger{}, 0)
	require.NoError(t, restarted.Load(ctx))
	assert.Len(t, restarted.Trades(), 2)
	assert.Equal(t, 2, restarted.Streaks().CurrentLosses)
}

func TestTradeLogger_ExportCSV(t *testing.T) {
	ctx := context.Background()
	tl := NewTradeLogger(nil, nopLogger{}, 0)
	require.NoError(t, tl.Record(ctx, loggedTrade(domain.OutcomeTakeProfit, 2)))

	var buf bytes.Buffer
	require.NoError(t, tl.ExportCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "r_multiple")
	assert.Contains(t, lines[1], "TAKE_PROFIT")
}
