package ports

import (
	"context"

	"smcPaperBot/internal/domain"
)

// PositionRepository defines the interface for persisting in-flight paper
// positions (pending orders and open positions).
type PositionRepository interface {
	// SavePosition inserts or replaces a position record.
	SavePosition(ctx context.Context, pos *domain.Position) error
	// DeletePosition removes a position record by ID.
	DeletePosition(ctx context.Context, id string) error
	// LoadPositions retrieves all persisted positions (load-on-start).
	LoadPositions(ctx context.Context) ([]*domain.Position, error)
}

// TradeRepository defines the interface for the completed-trade history log.
type TradeRepository interface {
	// CreateTrade appends a trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindTrades retrieves the most recent trades, up to a limit (0 = all),
	// ordered by exit time ascending.
	FindTrades(ctx context.Context, limit int) ([]*domain.Trade, error)
	// FindTradesBySymbol retrieves the most recent trades for a symbol.
	FindTradesBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
}

// AccountRepository defines the interface for the single virtual account.
type AccountRepository interface {
	// LoadAccount retrieves the account, or nil, nil when none exists yet.
	LoadAccount(ctx context.Context) (*domain.Account, error)
	// SaveAccount inserts or replaces the account record.
	SaveAccount(ctx context.Context, acct *domain.Account) error
}
