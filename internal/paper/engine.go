package paper

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/exit"
	"smcPaperBot/internal/ports"
	"smcPaperBot/internal/risk"
)

// EventType labels engine lifecycle notifications.
type EventType string

const (
	EventOrderPlaced    EventType = "ORDER_PLACED"
	EventOrderFilled    EventType = "ORDER_FILLED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventTradeClosed    EventType = "TRADE_CLOSED"
)

// Event is pushed to the observer on every position lifecycle change.
type Event struct {
	Type     EventType
	Position *domain.Position
	Trade    *domain.Trade
	Reason   string
	Time     time.Time
}

// EngineConfig holds the live paper-trading parameters.
type EngineConfig struct {
	Symbols    []string
	Timeframe  string
	WindowSize int

	ScanEvery    time.Duration
	MonitorEvery time.Duration

	// MaxHold force-closes a filled position that has been open too long.
	MaxHold time.Duration
	// MaxOrderAge and AdverseFraction parameterize the fill simulator.
	MaxOrderAge     time.Duration
	AdverseFraction float64
	// PriceStaleAfter skips evaluation when the cached tick is older than
	// this, rather than acting on a dead feed.
	PriceStaleAfter time.Duration
}

func (c *EngineConfig) applyDefaults() {
	if c.Timeframe == "" {
		c.Timeframe = "1h"
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 500
	}
	if c.ScanEvery <= 0 {
		c.ScanEvery = 5 * time.Minute
	}
	if c.MonitorEvery <= 0 {
		c.MonitorEvery = 10 * time.Second
	}
	if c.MaxHold <= 0 {
		c.MaxHold = 48 * time.Hour
	}
	if c.PriceStaleAfter <= 0 {
		c.PriceStaleAfter = 2 * time.Minute
	}
}

// Engine runs the paper-trading loop: scan for signals on a schedule, track
// pending orders and open positions against streamed prices, and settle
// every close through the ledger and the trade log. Exits go through the
// same state machine the replay uses, so live results stay comparable to
// backtests.
type Engine struct {
	cfg    EngineConfig
	log    ports.Logger
	market ports.MarketDataClient
	source ports.SignalSource

	store  *PositionStore
	ledger *risk.Ledger
	trades *TradeLogger
	sim    *OrderFillSimulator

	observer func(Event)

	mu     sync.Mutex
	prices map[string]domain.PriceTick
	evals  map[string]*exit.Evaluator
}

// NewEngine wires the engine. All collaborators are required.
func NewEngine(
	cfg EngineConfig,
	log ports.Logger,
	market ports.MarketDataClient,
	source ports.SignalSource,
	store *PositionStore,
	ledger *risk.Ledger,
	trades *TradeLogger,
) (*Engine, error) {
	if log == nil || market == nil || source == nil || store == nil || ledger == nil || trades == nil {
		return nil, fmt.Errorf("%w: missing engine dependencies", ports.ErrConfigurationError)
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ports.ErrConfigurationError)
	}
	cfg.applyDefaults()
	return &Engine{
		cfg:    cfg,
		log:    log,
		market: market,
		source: source,
		store:  store,
		ledger: ledger,
		trades: trades,
		sim:    NewOrderFillSimulator(cfg.MaxOrderAge, cfg.AdverseFraction),
		prices: make(map[string]domain.PriceTick),
		evals:  make(map[string]*exit.Evaluator),
	}, nil
}

// SetObserver registers a callback for lifecycle events. Must be called
// before Start.
func (e *Engine) SetObserver(fn func(Event)) { e.observer = fn }

// Start runs the engine until the context is cancelled or the price stream
// dies. It owns the scheduler and the stream lifecycle.
func (e *Engine) Start(ctx context.Context) error {
	e.log.Info(ctx, "Starting paper trading engine", map[string]interface{}{
		"symbols":   e.cfg.Symbols,
		"timeframe": e.cfg.Timeframe,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			e.log.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := e.market.Ping(ctx); err != nil {
		return fmt.Errorf("market data ping failed: %w", err)
	}

	if err := e.store.Load(ctx); err != nil {
		return err
	}
	e.store.Cleanup(ctx)
	if err := e.trades.Load(ctx); err != nil {
		return err
	}
	if err := e.rebuildEvaluators(ctx); err != nil {
		return err
	}

	doneCh, stopCh, err := e.market.StreamPrices(ctx, e.cfg.Symbols, e.handleTick, e.handleStreamError)
	if err != nil {
		return fmt.Errorf("starting price stream: %w", err)
	}
	e.log.Info(ctx, "Price stream started", map[string]interface{}{"symbols": e.cfg.Symbols})

	sched := cron.New()
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", e.cfg.ScanEvery), func() { e.scan(ctx) }); err != nil {
		return fmt.Errorf("scheduling scan: %w", err)
	}
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", e.cfg.MonitorEvery), func() { e.monitor(ctx) }); err != nil {
		return fmt.Errorf("scheduling monitor: %w", err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	// First scan immediately rather than waiting a full period.
	e.scan(ctx)

	select {
	case <-ctx.Done():
		e.log.Info(ctx, "Shutting down paper trading engine")
		select {
		case stopCh <- struct{}{}:
		default:
		}
		select {
		case <-doneCh:
		case <-time.After(5 * time.Second):
			e.log.Warn(ctx, "Timeout waiting for price stream shutdown")
		}
		return nil
	case <-doneCh:
		return fmt.Errorf("%w: price stream stopped unexpectedly", ports.ErrConnectionFailed)
	}
}

// rebuildEvaluators restores the per-position state machines after a
// restart. Positions whose stored signal no longer validates are dropped.
func (e *Engine) rebuildEvaluators(ctx context.Context) error {
	for _, pos := range e.store.All() {
		ev, err := exit.NewEvaluator(pos.Signal)
		if err != nil {
			e.log.Warn(ctx, "Dropping restored position with invalid signal", map[string]interface{}{
				"positionID": pos.ID,
				"error":      err.Error(),
			})
			if rmErr := e.store.Remove(ctx, pos.ID); rmErr != nil {
				return rmErr
			}
			continue
		}
		e.mu.Lock()
		e.evals[pos.ID] = ev
		e.mu.Unlock()
	}
	return nil
}

func (e *Engine) handleTick(tick domain.PriceTick) {
	e.mu.Lock()
	e.prices[tick.Symbol] = tick
	e.mu.Unlock()
	e.store.PushPrice(tick.Symbol, tick.Price)
}

func (e *Engine) handleStreamError(err error) {
	e.log.Error(context.Background(), err, "Price stream error")
}

// scan pulls fresh klines for every symbol, asks the analyzer for signals,
// and places a pending paper order for each accepted one. Per-symbol
// failures are logged and skipped.
func (e *Engine) scan(ctx context.Context) {
	for _, symbol := range e.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if e.store.HasSymbol(symbol) {
			e.log.Debug(ctx, "Skipping symbol with an in-flight position", map[string]interface{}{
				"symbol": symbol,
			})
			continue
		}
		klines, err := e.market.GetKlines(ctx, symbol, e.cfg.Timeframe, e.cfg.WindowSize)
		if err != nil {
			e.log.Warn(ctx, "Failed to fetch klines for scan", map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			})
			continue
		}

		var htf []*domain.Kline
		if htfInterval, ok := domain.HigherTimeframe(e.cfg.Timeframe); ok {
			htf, err = e.market.GetKlines(ctx, symbol, htfInterval, e.cfg.WindowSize)
			if err != nil {
				e.log.Warn(ctx, "Failed to fetch higher-timeframe klines, analyzing without them", map[string]interface{}{
					"symbol": symbol,
					"error":  err.Error(),
				})
				htf = nil
			}
		}

		signals, err := e.source.Analyze(ctx, symbol, e.cfg.Timeframe, klines, htf)
		if err != nil {
			e.log.Warn(ctx, "Analyzer failed", map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			})
			continue
		}
		for _, sig := range signals {
			e.placeOrder(ctx, sig)
		}
	}
}

// placeOrder converts an accepted signal into a pending limit order.
func (e *Engine) placeOrder(ctx context.Context, sig *domain.Signal) {
	if e.store.HasSignal(sig) {
		return
	}

	ev, err := exit.NewEvaluator(sig)
	if err != nil {
		e.log.Warn(ctx, "Rejected signal", map[string]interface{}{
			"symbol": sig.Symbol,
			"error":  err.Error(),
		})
		return
	}

	size, riskAmount, err := e.ledger.PositionSize(sig.Entry, sig.StopLoss)
	if err != nil {
		e.log.Warn(ctx, "Could not size position", map[string]interface{}{
			"symbol": sig.Symbol,
			"error":  err.Error(),
		})
		return
	}
	value := size * sig.Entry
	if ok, reason := e.ledger.CanOpen(value, e.store.CountOpen()); !ok {
		e.log.Debug(ctx, "Signal skipped by account limits", map[string]interface{}{
			"symbol": sig.Symbol,
			"reason": reason,
		})
		return
	}

	now := time.Now().UTC()
	pos := &domain.Position{
		ID:            fmt.Sprintf("%s-%d", sig.Symbol, now.UnixNano()),
		Symbol:        sig.Symbol,
		Direction:     sig.Direction,
		Status:        domain.StatusPending,
		Signal:        sig,
		Risk:          domain.NewRiskState(sig),
		EntryPrice:    sig.Entry,
		Size:          size,
		Value:         value,
		RiskAmount:    riskAmount,
		OrderPlacedAt: now,
		Timeframe:     e.cfg.Timeframe,
	}
	if err := e.store.Add(ctx, pos); err != nil {
		e.log.Error(ctx, err, "Failed to store pending order", map[string]interface{}{
			"positionID": pos.ID,
		})
		return
	}
	e.mu.Lock()
	e.evals[pos.ID] = ev
	e.mu.Unlock()

	e.log.Info(ctx, "Paper order placed", map[string]interface{}{
		"positionID": pos.ID,
		"direction":  string(pos.Direction),
		"entry":      sig.Entry,
		"stop":       sig.StopLoss,
		"size":       size,
	})
	e.emit(Event{Type: EventOrderPlaced, Position: pos, Time: now})
}

// monitor advances every pending order and open position against the
// freshest cached price.
func (e *Engine) monitor(ctx context.Context) {
	now := time.Now().UTC()
	e.mu.Lock()
	snapshot := make(map[string]domain.PriceTick, len(e.prices))
	for sym, tick := range e.prices {
		snapshot[sym] = tick
	}
	e.mu.Unlock()

	for _, pos := range e.store.Pending() {
		tick, ok := e.freshTick(snapshot, pos.Symbol, now)
		if !ok {
			continue
		}
		dec := e.sim.Evaluate(pos, tick.Price, now)
		switch {
		case dec.Fill:
			pos.Status = domain.StatusOpen
			pos.FilledAt = now
			pos.EntryPrice = dec.FillPrice
			pos.CurrentPrice = tick.Price
			if err := e.store.Update(ctx, pos); err != nil {
				e.log.Error(ctx, err, "Failed to persist fill", map[string]interface{}{"positionID": pos.ID})
				continue
			}
			e.log.Info(ctx, "Paper order filled", map[string]interface{}{
				"positionID": pos.ID,
				"fillPrice":  dec.FillPrice,
			})
			e.emit(Event{Type: EventOrderFilled, Position: pos, Reason: dec.Reason, Time: now})
		case dec.Cancel:
			if err := e.store.Remove(ctx, pos.ID); err != nil {
				e.log.Error(ctx, err, "Failed to remove cancelled order", map[string]interface{}{"positionID": pos.ID})
				continue
			}
			e.dropEvaluator(pos.ID)
			e.log.Info(ctx, "Paper order cancelled", map[string]interface{}{
				"positionID": pos.ID,
				"reason":     dec.Reason,
			})
			e.emit(Event{Type: EventOrderCancelled, Position: pos, Reason: dec.Reason, Time: now})
		}
	}

	var floating float64
	for _, pos := range e.store.Open() {
		tick, ok := e.freshTick(snapshot, pos.Symbol, now)
		if !ok {
			// Carry the last known mark so a stalled feed does not zero
			// out equity for positions that are still open.
			floating += pos.FloatingPnl
			continue
		}
		ev := e.evaluatorFor(pos.ID)
		if ev == nil {
			// Should not happen; rebuildEvaluators covers restarts.
			e.log.Error(ctx, ports.ErrUnknown, "No evaluator for open position", map[string]interface{}{"positionID": pos.ID})
			continue
		}

		var dec exit.Decision
		if pos.HoldTime(now) >= e.cfg.MaxHold {
			dec = ev.ForceClose(&pos.Risk, tick.Price, now, domain.OutcomeTimeout,
				fmt.Sprintf("max hold time %s exceeded", e.cfg.MaxHold))
		} else {
			dec = ev.Step(&pos.Risk, exit.Tick(tick.Price, tick.Time))
		}

		if !dec.Done {
			e.refreshFloating(pos, tick.Price)
			floating += pos.FloatingPnl
			if err := e.store.Update(ctx, pos); err != nil {
				e.log.Error(ctx, err, "Failed to persist position state", map[string]interface{}{"positionID": pos.ID})
			}
			continue
		}
		e.closePosition(ctx, pos, dec)
	}
	e.ledger.UpdateEquity(floating)

	sum := e.store.Totals()
	e.log.Debug(ctx, "Position totals", map[string]interface{}{
		"pending":     sum.Pending,
		"open":        sum.Open,
		"exposure":    sum.Exposure,
		"floatingPnl": sum.FloatingPnl,
	})
}

// refreshFloating recomputes display PnL fields from the latest price.
func (e *Engine) refreshFloating(pos *domain.Position, price float64) {
	sign := pos.Direction.Sign()
	pos.CurrentPrice = price
	pos.FloatingPnl = (price - pos.EntryPrice) * sign * pos.Size
	pos.FloatingPct = (price - pos.EntryPrice) * sign / pos.EntryPrice * 100
	if pos.FloatingPct < 0 && -pos.FloatingPct > pos.MaxAdversePct {
		pos.MaxAdversePct = -pos.FloatingPct
	}
	if pos.FloatingPct > pos.MaxFavorPct {
		pos.MaxFavorPct = pos.FloatingPct
	}
}

// closePosition settles a terminal decision: record the trade, update the
// ledger, drop the position.
func (e *Engine) closePosition(ctx context.Context, pos *domain.Position, dec exit.Decision) {
	trade := exit.BuildTrade(pos.Signal, &pos.Risk, dec)
	trade.Timeframe = pos.Timeframe
	trade.EntryTime = pos.FilledAt
	trade.PnlQuote = dec.RMultiple * pos.RiskAmount

	if err := e.ledger.RecordTrade(ctx, trade); err != nil {
		e.log.Error(ctx, err, "Failed to settle trade in ledger", map[string]interface{}{"positionID": pos.ID})
	}
	if err := e.trades.Record(ctx, trade); err != nil {
		e.log.Error(ctx, err, "Failed to record trade", map[string]interface{}{"positionID": pos.ID})
	}
	if err := e.store.Remove(ctx, pos.ID); err != nil {
		e.log.Error(ctx, err, "Failed to remove closed position", map[string]interface{}{"positionID": pos.ID})
	}
	e.dropEvaluator(pos.ID)
	e.emit(Event{Type: EventTradeClosed, Position: pos, Trade: trade, Reason: dec.Reason, Time: dec.ExitTime})
}

func (e *Engine) freshTick(snapshot map[string]domain.PriceTick, symbol string, now time.Time) (domain.PriceTick, bool) {
	tick, ok := snapshot[symbol]
	if !ok {
		return domain.PriceTick{}, false
	}
	if now.Sub(tick.Time) > e.cfg.PriceStaleAfter {
		return domain.PriceTick{}, false
	}
	return tick, true
}

func (e *Engine) evaluatorFor(id string) *exit.Evaluator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evals[id]
}

func (e *Engine) dropEvaluator(id string) {
	e.mu.Lock()
	delete(e.evals, id)
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}
