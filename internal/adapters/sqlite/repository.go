package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.PositionRepository, ports.TradeRepository
// and ports.AccountRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		status TEXT NOT NULL,
		signal_json TEXT NOT NULL,
		risk_json TEXT NOT NULL,
		entry_price REAL NOT NULL,
		size REAL NOT NULL,
		value REAL NOT NULL,
		risk_amount REAL NOT NULL,
		current_price REAL DEFAULT 0,
		order_placed_at TIMESTAMP NOT NULL,
		filled_at TIMESTAMP DEFAULT NULL,
		timeframe TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		entry REAL NOT NULL,
		stop_loss REAL NOT NULL,
		outcome TEXT NOT NULL,
		exit_price REAL NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		r_multiple REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		pnl_quote REAL NOT NULL,
		bars_in_trade INTEGER NOT NULL,
		max_adverse_r REAL NOT NULL,
		max_favorable_r REAL NOT NULL,
		breakeven_activated INTEGER NOT NULL DEFAULT 0,
		trailing_activated INTEGER NOT NULL DEFAULT 0,
		partial_closed INTEGER NOT NULL DEFAULT 0,
		signal_json TEXT NULL,
		signal_time TIMESTAMP NULL,
		entry_time TIMESTAMP NULL
	);

	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		balance REAL NOT NULL,
		initial_balance REAL NOT NULL,
		equity REAL NOT NULL,
		peak_balance REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		max_drawdown_pct REAL NOT NULL,
		total_pnl REAL NOT NULL,
		total_pnl_pct REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_trade TIMESTAMP NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_positions_symbol_status ON positions (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_trade_history_symbol_exit_time ON trade_history (symbol, exit_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PositionRepository Implementation ---

// SavePosition inserts or replaces a position record.
func (r *Repository) SavePosition(ctx context.Context, pos *domain.Position) error {
	signalJSON, err := json.Marshal(pos.Signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal for position %s: %w", pos.ID, err)
	}
	riskJSON, err := json.Marshal(pos.Risk)
	if err != nil {
		return fmt.Errorf("failed to marshal risk state for position %s: %w", pos.ID, err)
	}

	var filledAt sql.NullTime
	if !pos.FilledAt.IsZero() {
		filledAt = sql.NullTime{Time: pos.FilledAt, Valid: true}
	}

	const query = `
	INSERT OR REPLACE INTO positions
		(id, symbol, direction, status, signal_json, risk_json, entry_price,
		 size, value, risk_amount, current_price, order_placed_at, filled_at, timeframe)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, string(pos.Direction), string(pos.Status),
		string(signalJSON), string(riskJSON), pos.EntryPrice,
		pos.Size, pos.Value, pos.RiskAmount, pos.CurrentPrice,
		pos.OrderPlacedAt, filledAt, pos.Timeframe)
	if err != nil {
		return fmt.Errorf("failed to save position %s: %w", pos.ID, err)
	}
	r.logger.Debug(ctx, "Position saved", map[string]interface{}{"positionID": pos.ID, "status": string(pos.Status)})
	return nil
}

// DeletePosition removes a position record by ID.
func (r *Repository) DeletePosition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		r.logger.Debug(ctx, "Delete for unknown position", map[string]interface{}{"positionID": id})
	}
	return nil
}

// LoadPositions retrieves all persisted positions.
func (r *Repository) LoadPositions(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT id, symbol, direction, status, signal_json, risk_json, entry_price,
	       size, value, risk_amount, current_price, order_placed_at, filled_at, timeframe
	FROM positions ORDER BY order_placed_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		var pos domain.Position
		var direction, status, signalJSON, riskJSON string
		var filledAt sql.NullTime
		if err := rows.Scan(&pos.ID, &pos.Symbol, &direction, &status, &signalJSON, &riskJSON,
			&pos.EntryPrice, &pos.Size, &pos.Value, &pos.RiskAmount, &pos.CurrentPrice,
			&pos.OrderPlacedAt, &filledAt, &pos.Timeframe); err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		pos.Direction = domain.Direction(direction)
		pos.Status = domain.PositionStatus(status)
		if filledAt.Valid {
			pos.FilledAt = filledAt.Time
		}
		if err := json.Unmarshal([]byte(signalJSON), &pos.Signal); err != nil {
			return nil, fmt.Errorf("failed to unmarshal signal for position %s: %w", pos.ID, err)
		}
		if err := json.Unmarshal([]byte(riskJSON), &pos.Risk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal risk state for position %s: %w", pos.ID, err)
		}
		positions = append(positions, &pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// --- TradeRepository Implementation ---

// CreateTrade appends a trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	var signalJSON sql.NullString
	if trade.Signal != nil {
		b, err := json.Marshal(trade.Signal)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal signal for trade: %w", err)
		}
		signalJSON = sql.NullString{String: string(b), Valid: true}
	}

	const query = `
	INSERT INTO trade_history
		(symbol, direction, timeframe, entry, stop_loss, outcome, exit_price, exit_time,
		 r_multiple, pnl_percent, pnl_quote, bars_in_trade, max_adverse_r, max_favorable_r,
		 breakeven_activated, trailing_activated, partial_closed, signal_json, signal_time, entry_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, string(trade.Direction), trade.Timeframe,
		trade.Entry, trade.StopLoss, string(trade.Outcome), trade.ExitPrice, trade.ExitTime,
		trade.RMultiple, trade.PnlPercent, trade.PnlQuote, trade.BarsInTrade,
		trade.MaxAdverseR, trade.MaxFavorableR,
		trade.BreakevenActivated, trade.TrailingActivated, trade.PartialClosed,
		signalJSON, nullableTime(trade.SignalTime), nullableTime(trade.EntryTime))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "outcome": string(trade.Outcome)})
	return id, nil
}

// FindTrades retrieves the most recent trades (0 = all), returned oldest
// first.
func (r *Repository) FindTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := tradeSelect + ` ORDER BY exit_time DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryTrades(ctx, query, args...)
}

// FindTradesBySymbol retrieves the most recent trades for a symbol.
func (r *Repository) FindTradesBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	query := tradeSelect + ` WHERE symbol = ? ORDER BY exit_time DESC, id DESC`
	args := []interface{}{symbol}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryTrades(ctx, query, args...)
}

const tradeSelect = `
	SELECT id, symbol, direction, timeframe, entry, stop_loss, outcome, exit_price, exit_time,
	       r_multiple, pnl_percent, pnl_quote, bars_in_trade, max_adverse_r, max_favorable_r,
	       breakeven_activated, trailing_activated, partial_closed, signal_json, signal_time, entry_time
	FROM trade_history`

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var tr domain.Trade
		var direction, outcome string
		var signalJSON sql.NullString
		var signalTime, entryTime sql.NullTime
		if err := rows.Scan(&tr.ID, &tr.Symbol, &direction, &tr.Timeframe,
			&tr.Entry, &tr.StopLoss, &outcome, &tr.ExitPrice, &tr.ExitTime,
			&tr.RMultiple, &tr.PnlPercent, &tr.PnlQuote, &tr.BarsInTrade,
			&tr.MaxAdverseR, &tr.MaxFavorableR,
			&tr.BreakevenActivated, &tr.TrailingActivated, &tr.PartialClosed,
			&signalJSON, &signalTime, &entryTime); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		tr.Direction = domain.Direction(direction)
		tr.Outcome = domain.Outcome(outcome)
		if signalJSON.Valid {
			if err := json.Unmarshal([]byte(signalJSON.String), &tr.Signal); err != nil {
				return nil, fmt.Errorf("failed to unmarshal signal for trade %d: %w", tr.ID, err)
			}
		}
		if signalTime.Valid {
			tr.SignalTime = signalTime.Time
		}
		if entryTime.Valid {
			tr.EntryTime = entryTime.Time
		}
		trades = append(trades, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	// Rows come newest first; callers replay history oldest first.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// --- AccountRepository Implementation ---

// LoadAccount retrieves the account, or nil, nil when none exists yet.
func (r *Repository) LoadAccount(ctx context.Context) (*domain.Account, error) {
	const query = `
	SELECT balance, initial_balance, equity, peak_balance, max_drawdown, max_drawdown_pct,
	       total_pnl, total_pnl_pct, created_at, last_trade
	FROM account WHERE id = 1`

	var acct domain.Account
	var lastTrade sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(
		&acct.Balance, &acct.InitialBalance, &acct.Equity, &acct.PeakBalance,
		&acct.MaxDrawdown, &acct.MaxDrawdownPct, &acct.TotalPnl, &acct.TotalPnlPct,
		&acct.CreatedAt, &lastTrade)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	if lastTrade.Valid {
		acct.LastTrade = lastTrade.Time
	}
	return &acct, nil
}

// SaveAccount inserts or replaces the account record.
func (r *Repository) SaveAccount(ctx context.Context, acct *domain.Account) error {
	const query = `
	INSERT OR REPLACE INTO account
		(id, balance, initial_balance, equity, peak_balance, max_drawdown, max_drawdown_pct,
		 total_pnl, total_pnl_pct, created_at, last_trade)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		acct.Balance, acct.InitialBalance, acct.Equity, acct.PeakBalance,
		acct.MaxDrawdown, acct.MaxDrawdownPct, acct.TotalPnl, acct.TotalPnlPct,
		acct.CreatedAt, nullableTime(acct.LastTrade))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
