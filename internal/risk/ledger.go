package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"

	"github.com/shopspring/decimal"
)

// Config holds the account and sizing rules for the virtual ledger.
type Config struct {
	InitialBalance float64
	// RiskPerTrade is the fraction of the balance lost if the stop is hit
	// at full size (e.g. 0.02 for 2%).
	RiskPerTrade float64
	// MaxPositionFraction caps a single position's notional value as a
	// fraction of the balance (e.g. 0.5 for 50%).
	MaxPositionFraction float64
	MaxOpenPositions    int
}

// Ledger owns the virtual account. All balance arithmetic runs through
// decimals so repeated small trades cannot accumulate float drift; the
// persisted snapshot stays plain float64.
type Ledger struct {
	cfg  Config
	repo ports.AccountRepository
	log  ports.Logger

	mu   sync.Mutex
	acct *domain.Account
}

// NewLedger restores the account from the repository, or opens a fresh one
// with the configured initial balance when none is persisted yet.
func NewLedger(ctx context.Context, cfg Config, repo ports.AccountRepository, log ports.Logger) (*Ledger, error) {
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("%w: initial balance must be positive, got %.2f", ports.ErrConfigurationError, cfg.InitialBalance)
	}
	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade >= 1 {
		return nil, fmt.Errorf("%w: risk per trade %.4f outside (0,1)", ports.ErrConfigurationError, cfg.RiskPerTrade)
	}
	if cfg.MaxPositionFraction <= 0 || cfg.MaxPositionFraction > 1 {
		return nil, fmt.Errorf("%w: max position fraction %.4f outside (0,1]", ports.ErrConfigurationError, cfg.MaxPositionFraction)
	}

	l := &Ledger{cfg: cfg, repo: repo, log: log}
	if repo != nil {
		acct, err := repo.LoadAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading account: %w", err)
		}
		if acct != nil {
			l.acct = acct
			log.Info(ctx, "Restored virtual account", map[string]interface{}{
				"balance":  acct.Balance,
				"totalPnl": acct.TotalPnl,
			})
			return l, nil
		}
	}
	l.acct = freshAccount(cfg.InitialBalance)
	if err := l.persist(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func freshAccount(balance float64) *domain.Account {
	return &domain.Account{
		Balance:        balance,
		InitialBalance: balance,
		Equity:         balance,
		PeakBalance:    balance,
		CreatedAt:      time.Now().UTC(),
	}
}

// PositionSize returns the unit size and quote risk amount for a trade
// entered at entry with the given stop. The size risks RiskPerTrade of the
// current balance across the stop distance, then shrinks if the resulting
// notional value would exceed MaxPositionFraction of the balance.
func (l *Ledger) PositionSize(entry, stop float64) (size, riskAmount float64, err error) {
	dist := entry - stop
	if dist < 0 {
		dist = -dist
	}
	if dist == 0 || entry <= 0 {
		return 0, 0, fmt.Errorf("%w: zero stop distance at entry %.8f", ports.ErrInvalidSignal, entry)
	}

	l.mu.Lock()
	balance := decimal.NewFromFloat(l.acct.Balance)
	l.mu.Unlock()

	risk := balance.Mul(decimal.NewFromFloat(l.cfg.RiskPerTrade))
	units := risk.Div(decimal.NewFromFloat(dist))

	maxValue := balance.Mul(decimal.NewFromFloat(l.cfg.MaxPositionFraction))
	value := units.Mul(decimal.NewFromFloat(entry))
	if value.GreaterThan(maxValue) {
		units = maxValue.Div(decimal.NewFromFloat(entry))
		risk = units.Mul(decimal.NewFromFloat(dist))
	}
	return units.InexactFloat64(), risk.InexactFloat64(), nil
}

// CanOpen reports whether a new position of the given notional value may be
// opened alongside openCount already-open positions. The reason string is
// empty when allowed.
func (l *Ledger) CanOpen(value float64, openCount int) (bool, string) {
	l.mu.Lock()
	balance := l.acct.Balance
	l.mu.Unlock()

	if l.cfg.MaxOpenPositions > 0 && openCount >= l.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("max concurrent positions reached (%d)", l.cfg.MaxOpenPositions)
	}
	if balance <= 0 {
		return false, "account balance depleted"
	}
	if maxValue := balance * l.cfg.MaxPositionFraction; value > maxValue {
		return false, fmt.Sprintf("position value %.2f exceeds %.0f%% of balance (%.2f)",
			value, l.cfg.MaxPositionFraction*100, maxValue)
	}
	return true, ""
}

// RecordTrade applies a closed trade's quote PnL to the balance, updates
// the drawdown watermarks, and persists the account.
func (l *Ledger) RecordTrade(ctx context.Context, trade *domain.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance := decimal.NewFromFloat(l.acct.Balance).
		Add(decimal.NewFromFloat(trade.PnlQuote))
	l.acct.Balance = balance.InexactFloat64()
	l.acct.Equity = l.acct.Balance
	l.acct.TotalPnl = decimal.NewFromFloat(l.acct.Balance).
		Sub(decimal.NewFromFloat(l.acct.InitialBalance)).InexactFloat64()
	l.acct.TotalPnlPct = l.acct.TotalPnl / l.acct.InitialBalance * 100
	l.acct.LastTrade = trade.ExitTime

	if l.acct.Balance > l.acct.PeakBalance {
		l.acct.PeakBalance = l.acct.Balance
	}
	if dd := l.acct.PeakBalance - l.acct.Balance; dd > l.acct.MaxDrawdown {
		l.acct.MaxDrawdown = dd
		l.acct.MaxDrawdownPct = dd / l.acct.PeakBalance
	}
	return l.persist(ctx)
}

// UpdateEquity recomputes equity from the balance plus the floating PnL of
// all open positions. Equity is display state and is not persisted here.
func (l *Ledger) UpdateEquity(floatingPnl float64) {
	l.mu.Lock()
	l.acct.Equity = l.acct.Balance + floatingPnl
	l.mu.Unlock()
}

// Reset discards all account history and reopens at the initial balance.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acct = freshAccount(l.cfg.InitialBalance)
	l.log.Warn(ctx, "Virtual account reset", map[string]interface{}{
		"balance": l.acct.Balance,
	})
	return l.persist(ctx)
}

// Snapshot returns a copy of the current account state.
func (l *Ledger) Snapshot() domain.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.acct
}

// persist is called with the mutex held.
func (l *Ledger) persist(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	if err := l.repo.SaveAccount(ctx, l.acct); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	return nil
}
