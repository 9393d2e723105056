package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"
)

// PositionStore holds all in-flight paper positions. Every mutation is
// written through to the repository immediately so a restart resumes with
// the same pending orders and open positions.
type PositionStore struct {
	repo ports.PositionRepository
	log  ports.Logger

	mu        sync.RWMutex
	positions map[string]*domain.Position
}

// NewPositionStore builds an empty store. Call Load before serving.
func NewPositionStore(repo ports.PositionRepository, log ports.Logger) *PositionStore {
	return &PositionStore{
		repo:      repo,
		log:       log,
		positions: make(map[string]*domain.Position),
	}
}

// Load restores persisted positions. Anything already in memory is dropped.
func (s *PositionStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	persisted, err := s.repo.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}
	s.mu.Lock()
	s.positions = make(map[string]*domain.Position, len(persisted))
	for _, p := range persisted {
		s.positions[p.ID] = p
	}
	s.mu.Unlock()
	if len(persisted) > 0 {
		s.log.Info(ctx, "Restored in-flight positions", map[string]interface{}{
			"count": len(persisted),
		})
	}
	return nil
}

// Add inserts a new position and persists it.
func (s *PositionStore) Add(ctx context.Context, pos *domain.Position) error {
	s.mu.Lock()
	if _, exists := s.positions[pos.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: position %s", ports.ErrDuplicateEntry, pos.ID)
	}
	s.positions[pos.ID] = pos
	s.mu.Unlock()
	return s.persist(ctx, pos)
}

// Update persists the current state of an already-stored position.
func (s *PositionStore) Update(ctx context.Context, pos *domain.Position) error {
	s.mu.Lock()
	if _, exists := s.positions[pos.ID]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: position %s", ports.ErrNotFound, pos.ID)
	}
	s.positions[pos.ID] = pos
	s.mu.Unlock()
	return s.persist(ctx, pos)
}

// Remove deletes a position from memory and from the repository.
func (s *PositionStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.positions, id)
	s.mu.Unlock()
	if s.repo == nil {
		return nil
	}
	if err := s.repo.DeletePosition(ctx, id); err != nil {
		return fmt.Errorf("deleting position %s: %w", id, err)
	}
	return nil
}

// Get returns the position with the given ID, or nil.
func (s *PositionStore) Get(id string) *domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[id]
}

// All returns every stored position sorted by placement time.
func (s *PositionStore) All() []*domain.Position {
	s.mu.RLock()
	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].OrderPlacedAt.Before(out[j].OrderPlacedAt)
	})
	return out
}

// Open returns filled, still-live positions.
func (s *PositionStore) Open() []*domain.Position {
	return s.filter((*domain.Position).IsOpen)
}

// Pending returns resting, unfilled orders.
func (s *PositionStore) Pending() []*domain.Position {
	return s.filter((*domain.Position).IsPending)
}

// CountOpen returns how many positions are currently filled.
func (s *PositionStore) CountOpen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.positions {
		if p.IsOpen() {
			n++
		}
	}
	return n
}

// Summary is a point-in-time aggregate of the store used for status
// reporting. Exposure and floating P&L cover open positions only.
type Summary struct {
	Pending     int
	Open        int
	Exposure    float64
	FloatingPnl float64
}

// Totals aggregates counts by status plus open exposure and floating P&L.
func (s *PositionStore) Totals() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum Summary
	for _, p := range s.positions {
		switch {
		case p.IsPending():
			sum.Pending++
		case p.IsOpen():
			sum.Open++
			sum.Exposure += p.Value
			sum.FloatingPnl += p.FloatingPnl
		}
	}
	return sum
}

// Cleanup drops positions that reached a terminal status without being
// removed, which can happen when a close is interrupted before Remove.
// Returns how many records were purged.
func (s *PositionStore) Cleanup(ctx context.Context) int {
	s.mu.Lock()
	var leaked []string
	for id, p := range s.positions {
		if p.Status == domain.StatusClosed {
			leaked = append(leaked, id)
			delete(s.positions, id)
		}
	}
	s.mu.Unlock()

	for _, id := range leaked {
		if s.repo == nil {
			continue
		}
		if err := s.repo.DeletePosition(ctx, id); err != nil {
			s.log.Warn(ctx, "Failed to purge closed position", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
		}
	}
	if len(leaked) > 0 {
		s.log.Info(ctx, "Purged leaked closed positions", map[string]interface{}{
			"count": len(leaked),
		})
	}
	return len(leaked)
}

// HasSymbol reports whether the symbol already has a pending or open
// position, so the scan loop leaves it alone until that resolves.
func (s *PositionStore) HasSymbol(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// PushPrice appends the latest traded price to the history ring of every
// in-flight position on the symbol. Rings are in-memory only and bounded,
// so ticks never touch the repository.
func (s *PositionStore) PushPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.positions {
		if p.Symbol != symbol {
			continue
		}
		p.PriceHistory = append(p.PriceHistory, price)
		if len(p.PriceHistory) > domain.PriceHistorySize {
			p.PriceHistory = p.PriceHistory[len(p.PriceHistory)-domain.PriceHistorySize:]
		}
	}
}

// HasSignal reports whether any stored position was opened from a signal
// with the same identity, so repeated scans do not stack duplicate orders.
func (s *PositionStore) HasSignal(sig *domain.Signal) bool {
	key := signalKey(sig)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.positions {
		if p.Signal != nil && signalKey(p.Signal) == key {
			return true
		}
	}
	return false
}

func (s *PositionStore) filter(keep func(*domain.Position) bool) []*domain.Position {
	s.mu.RLock()
	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].OrderPlacedAt.Before(out[j].OrderPlacedAt)
	})
	return out
}

func (s *PositionStore) persist(ctx context.Context, pos *domain.Position) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("saving position %s: %w", pos.ID, err)
	}
	return nil
}

func signalKey(sig *domain.Signal) string {
	return fmt.Sprintf("%s|%s|%d|%.8f", sig.Symbol, sig.Direction, sig.AnchorTime.UnixMilli(), sig.Entry)
}
