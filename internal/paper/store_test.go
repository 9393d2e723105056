package paper

import (
	"context"
	"testing"
	"time"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

type memPositionRepo struct {
	positions map[string]*domain.Position
}

func newMemPositionRepo() *memPositionRepo {
	return &memPositionRepo{positions: make(map[string]*domain.Position)}
}

func (m *memPositionRepo) SavePosition(_ context.Context, pos *domain.Position) error {
	cp := *pos
	m.positions[pos.ID] = &cp
	return nil
}

func (m *memPositionRepo) DeletePosition(_ context.Context, id string) error {
	delete(m.positions, id)
	return nil
}

func (m *memPositionRepo) LoadPositions(context.Context) ([]*domain.Position, error) {
	out := make([]*domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func storePosition(id string, status domain.PositionStatus, placed time.Time) *domain.Position {
	return &domain.Position{
		ID:     id,
		Symbol: "BTCUSDT",
		Status: status,
		Signal: &domain.Signal{
			Symbol: "BTCUSDT", Direction: domain.Long,
			Entry: 100, StopLoss: 95, TakeProfit: 110,
			AnchorTime: placed,
		},
		OrderPlacedAt: placed,
	}
}

func TestStore_AddUpdateRemove(t *testing.T) {
	ctx := context.Background()
	repo := newMemPositionRepo()
	s := NewPositionStore(repo, nopLogger{})

	pos := storePosition("a", domain.StatusPending, time.Unix(1, 0))
	require.NoError(t, s.Add(ctx, pos))
	assert.Len(t, repo.positions, 1)

	err := s.Add(ctx, pos)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	pos.Status = domain.StatusOpen
	require.NoError(t, s.Update(ctx, pos))
	assert.Equal(t, domain.StatusOpen, repo.positions["a"].Status)

	require.NoError(t, s.Remove(ctx, "a"))
	assert.Nil(t, s.Get("a"))
	assert.Empty(t, repo.positions)

	err = s.Update(ctx, pos)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStore_FiltersAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore(nil, nopLogger{})

	require.NoError(t, s.Add(ctx, storePosition("p1", domain.StatusPending, time.Unix(2, 0))))
	require.NoError(t, s.Add(ctx, storePosition("o1", domain.StatusOpen, time.Unix(1, 0))))
	require.NoError(t, s.Add(ctx, storePosition("o2", domain.StatusOpen, time.Unix(3, 0))))

	assert.Equal(t, 2, s.CountOpen())
	assert.Len(t, s.Pending(), 1)

	open := s.Open()
	require.Len(t, open, 2)
	// Sorted by placement time.
	assert.Equal(t, "o1", open[0].ID)
	assert.Equal(t, "o2", open[1].ID)
}

func TestStore_LoadRestores(t *testing.T) {
	ctx := context.Background()
	repo := newMemPositionRepo()
	first := NewPositionStore(repo, nopLogger{})
	require.NoError(t, first.Add(ctx, storePosition("a", domain.StatusOpen, time.Unix(1, 0))))

	second := NewPositionStore(repo, nopLogger{})
	require.NoError(t, second.Load(ctx))
	require.NotNil(t, second.Get("a"))
	assert.Equal(t, 1, second.CountOpen())
}

func TestStore_TotalsAndCleanup(t *testing.T) {
	ctx := context.Background()
	repo := newMemPositionRepo()
	s := NewPositionStore(repo, nopLogger{})

	open := storePosition("o1", domain.StatusOpen, time.Unix(1, 0))
	open.Value = 400
	open.FloatingPnl = 15
	require.NoError(t, s.Add(ctx, open))
	require.NoError(t, s.Add(ctx, storePosition("p1", domain.StatusPending, time.Unix(2, 0))))
	require.NoError(t, s.Add(ctx, storePosition("c1", domain.StatusClosed, time.Unix(3, 0))))

	sum := s.Totals()
	assert.Equal(t, 1, sum.Pending)
	assert.Equal(t, 1, sum.Open)
	assert.InDelta(t, 400.0, sum.Exposure, 1e-9)
	assert.InDelta(t, 15.0, sum.FloatingPnl, 1e-9)

	// Only the leaked CLOSED record is purged.
	assert.Equal(t, 1, s.Cleanup(ctx))
	assert.Nil(t, s.Get("c1"))
	assert.NotContains(t, repo.positions, "c1")
	assert.NotNil(t, s.Get("o1"))
	assert.Zero(t, s.Cleanup(ctx))
}

func TestStore_PushPriceKeepsBoundedHistory(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore(nil, nopLogger{})
	require.NoError(t, s.Add(ctx, storePosition("a", domain.StatusOpen, time.Unix(1, 0))))

	for i := 0; i <= domain.PriceHistorySize+19; i++ {
		s.PushPrice("BTCUSDT", 100+float64(i))
	}
	s.PushPrice("ETHUSDT", 1) // different symbol, untouched ring

	hist := s.Get("a").PriceHistory
	require.Len(t, hist, domain.PriceHistorySize)
	assert.InDelta(t, 120.0, hist[0], 1e-9)
	assert.InDelta(t, 100.0+float64(domain.PriceHistorySize)+19, hist[len(hist)-1], 1e-9)
}

func TestStore_HasSymbol(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore(nil, nopLogger{})

	assert.False(t, s.HasSymbol("BTCUSDT"))
	require.NoError(t, s.Add(ctx, storePosition("a", domain.StatusPending, time.Unix(1, 0))))
	assert.True(t, s.HasSymbol("BTCUSDT"))
	assert.False(t, s.HasSymbol("ETHUSDT"))

	require.NoError(t, s.Remove(ctx, "a"))
	assert.False(t, s.HasSymbol("BTCUSDT"))
}

func TestStore_HasSignal(t *testing.T) {
	ctx := context.Background()
	s := NewPositionStore(nil, nopLogger{})
	pos := storePosition("a", domain.StatusPending, time.Unix(10, 0))
	require.NoError(t, s.Add(ctx, pos))

	same := *pos.Signal
	assert.True(t, s.HasSignal(&same))

	other := same
	other.AnchorTime = time.Unix(99, 0)
	assert.False(t, s.HasSignal(&other))
}
