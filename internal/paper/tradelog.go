package paper

import (
	"context"
	"fmt"
	"io"
	"sync"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"
	"smcPaperBot/internal/utils"
)

// DefaultLogCapacity bounds the in-memory trade history. The repository
// keeps everything; only the working set is capped.
const DefaultLogCapacity = 500

// Streaks tracks consecutive win/loss runs across the logged history.
type Streaks struct {
	CurrentWins   int `json:"currentWins"`
	CurrentLosses int `json:"currentLosses"`
	BestWins      int `json:"bestWins"`
	WorstLosses   int `json:"worstLosses"`
}

// TradeLogger appends completed trades to the repository and keeps a capped
// in-memory window of the most recent ones for reporting and streaks.
type TradeLogger struct {
	repo ports.TradeRepository
	log  ports.Logger
	cap  int

	mu      sync.Mutex
	trades  []*domain.Trade
	streaks Streaks
}

// NewTradeLogger builds a logger with the given in-memory capacity
// (0 means DefaultLogCapacity).
func NewTradeLogger(repo ports.TradeRepository, log ports.Logger, capacity int) *TradeLogger {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &TradeLogger{repo: repo, log: log, cap: capacity}
}

// Load warms the in-memory window from the repository and replays streaks
// over it.
func (t *TradeLogger) Load(ctx context.Context) error {
	if t.repo == nil {
		return nil
	}
	trades, err := t.repo.FindTrades(ctx, t.cap)
	if err != nil {
		return fmt.Errorf("loading trade history: %w", err)
	}
	t.mu.Lock()
	t.trades = trades
	t.streaks = Streaks{}
	for _, tr := range trades {
		t.applyStreak(tr)
	}
	t.mu.Unlock()
	return nil
}

// Record persists the trade and appends it to the window, evicting the
// oldest entry when full.
func (t *TradeLogger) Record(ctx context.Context, trade *domain.Trade) error {
	if t.repo != nil {
		id, err := t.repo.CreateTrade(ctx, trade)
		if err != nil {
			return fmt.Errorf("recording trade: %w", err)
		}
		trade.ID = id
	}

	t.mu.Lock()
	t.trades = append(t.trades, trade)
	if len(t.trades) > t.cap {
		t.trades = t.trades[len(t.trades)-t.cap:]
	}
	t.applyStreak(trade)
	streaks := t.streaks
	t.mu.Unlock()

	t.log.Info(ctx, "Trade closed", map[string]interface{}{
		"symbol":     trade.Symbol,
		"outcome":    string(trade.Outcome),
		"rMultiple":  trade.RMultiple,
		"pnlQuote":   trade.PnlQuote,
		"winStreak":  streaks.CurrentWins,
		"lossStreak": streaks.CurrentLosses,
	})
	return nil
}

// applyStreak is called with the mutex held.
func (t *TradeLogger) applyStreak(trade *domain.Trade) {
	if trade.IsWin() {
		t.streaks.CurrentWins++
		t.streaks.CurrentLosses = 0
		if t.streaks.CurrentWins > t.streaks.BestWins {
			t.streaks.BestWins = t.streaks.CurrentWins
		}
	} else {
		t.streaks.CurrentLosses++
		t.streaks.CurrentWins = 0
		if t.streaks.CurrentLosses > t.streaks.WorstLosses {
			t.streaks.WorstLosses = t.streaks.CurrentLosses
		}
	}
}

// Trades returns a copy of the in-memory window, oldest first.
func (t *TradeLogger) Trades() []*domain.Trade {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*domain.Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// Streaks returns the current streak counters.
func (t *TradeLogger) Streaks() Streaks {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streaks
}

// ExportCSV writes the in-memory window as CSV.
func (t *TradeLogger) ExportCSV(w io.Writer) error {
	return utils.WriteTradesToCSV(t.Trades(), w)
}
