package backtesting

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smcPaperBot/internal/analytics"
	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/exit"
	"smcPaperBot/internal/ports"
)

// Replay parameters. The analyzer sees a fixed-size window that slides
// forward a few bars at a time; each signal is then simulated over the
// bars that follow its anchor.
const (
	DefaultWindowSize  = 500
	DefaultStepSize    = 10
	DefaultLookforward = 100
)

// Config holds replay parameters. Zero values take the defaults above.
type Config struct {
	Timeframe   string
	WindowSize  int
	StepSize    int
	Lookforward int
	// Workers bounds the per-symbol concurrency of RunAll.
	Workers int
}

// SymbolData is one symbol's input series. HTF may be nil.
type SymbolData struct {
	Klines []*domain.Kline
	HTF    []*domain.Kline
}

// Result is the replay outcome for one symbol. A non-nil Err means the
// symbol could not be processed; Trades is empty in that case so a
// multi-symbol run still aggregates the rest.
type Result struct {
	Symbol         string
	Timeframe      string
	Trades         []*domain.Trade
	Report         *analytics.Report
	SignalsFound   int
	SignalsSkipped int
	WindowErrors   int
	Err            error
}

// Runner replays historical klines through the analyzer and simulates every
// signal's outcome with the exit state machine.
type Runner struct {
	cfg    Config
	source ports.SignalSource
	log    ports.Logger
}

// NewRunner validates the configuration and applies defaults.
func NewRunner(cfg Config, source ports.SignalSource, log ports.Logger) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: signal source is required", ports.ErrConfigurationError)
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.StepSize <= 0 {
		cfg.StepSize = DefaultStepSize
	}
	if cfg.Lookforward <= 0 {
		cfg.Lookforward = DefaultLookforward
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1h"
	}
	return &Runner{cfg: cfg, source: source, log: log}, nil
}

// Run replays one symbol. The kline series must be sorted by open time and
// long enough for at least one full window plus the lookforward horizon.
func (r *Runner) Run(ctx context.Context, symbol string, data SymbolData) (*Result, error) {
	res := &Result{Symbol: symbol, Timeframe: r.cfg.Timeframe}
	need := r.cfg.WindowSize + r.cfg.Lookforward
	if len(data.Klines) < need {
		return nil, fmt.Errorf("%w: %s has %d bars, need at least %d", ports.ErrInsufficientData, symbol, len(data.Klines), need)
	}

	seen := make(map[string]struct{})
	for start := 0; start+r.cfg.WindowSize <= len(data.Klines); start += r.cfg.StepSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		window := data.Klines[start : start+r.cfg.WindowSize]
		htf := htfUpTo(data.HTF, window[len(window)-1])

		signals, err := r.source.Analyze(ctx, symbol, r.cfg.Timeframe, window, htf)
		if err != nil {
			res.WindowErrors++
			r.log.Warn(ctx, "Analyzer failed for window, skipping", map[string]interface{}{
				"symbol":     symbol,
				"windowFrom": window[0].OpenTime,
				"error":      err.Error(),
			})
			continue
		}

		for _, sig := range signals {
			key := dedupeKey(sig)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			res.SignalsFound++

			trade, ok := r.simulate(ctx, sig, data.Klines)
			if !ok {
				res.SignalsSkipped++
				continue
			}
			res.Trades = append(res.Trades, trade)
		}
	}

	res.Report = analytics.Calculate(res.Trades)
	r.log.Info(ctx, "Replay finished", map[string]interface{}{
		"symbol":  symbol,
		"signals": res.SignalsFound,
		"skipped": res.SignalsSkipped,
		"trades":  len(res.Trades),
	})
	return res, nil
}

// simulate walks a signal forward from its anchor bar through at most
// Lookforward bars. Signals whose anchor cannot be located in the series,
// or that fail validation, are skipped rather than failing the run.
func (r *Runner) simulate(ctx context.Context, sig *domain.Signal, klines []*domain.Kline) (*domain.Trade, bool) {
	ev, err := exit.NewEvaluator(sig)
	if err != nil {
		r.log.Warn(ctx, "Rejected malformed signal", map[string]interface{}{
			"symbol": sig.Symbol,
			"error":  err.Error(),
		})
		return nil, false
	}

	anchor := anchorIndex(klines, sig)
	if anchor < 0 || anchor+1 >= len(klines) {
		return nil, false
	}

	st := domain.NewRiskState(sig)
	end := anchor + 1 + r.cfg.Lookforward
	if end > len(klines) {
		end = len(klines)
	}

	var dec exit.Decision
	var last *domain.Kline
	for _, k := range klines[anchor+1 : end] {
		last = k
		dec = ev.Step(&st, exit.Observation{
			Price: k.Close,
			High:  k.High,
			Low:   k.Low,
			Time:  k.CloseTime,
		})
		if dec.Done {
			break
		}
	}
	if !dec.Done {
		dec = ev.Finish(&st, last.Close, last.CloseTime)
	}

	trade := exit.BuildTrade(sig, &st, dec)
	trade.Timeframe = r.cfg.Timeframe
	trade.EntryTime = klines[anchor].CloseTime
	return trade, true
}

// RunAll replays every symbol on a bounded worker pool. Per-symbol failures
// degrade to a Result carrying the error instead of aborting the batch.
func (r *Runner) RunAll(ctx context.Context, series map[string]SymbolData) []*Result {
	type job struct {
		symbol string
		data   SymbolData
	}
	jobs := make(chan job)
	results := make([]*Result, 0, len(series))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res, err := r.Run(ctx, j.symbol, j.data)
				if err != nil {
					res = &Result{
						Symbol:    j.symbol,
						Timeframe: r.cfg.Timeframe,
						Report:    analytics.Calculate(nil),
						Err:       err,
					}
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	for sym, data := range series {
		jobs <- job{symbol: sym, data: data}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results
}

// Combined aggregates all trades across results into one report.
func Combined(results []*Result) *analytics.Report {
	var all []*domain.Trade
	for _, res := range results {
		all = append(all, res.Trades...)
	}
	return analytics.Calculate(all)
}

// htfUpTo trims the higher-timeframe series to bars fully closed at the
// primary window's end, so the analyzer never sees future data.
func htfUpTo(htf []*domain.Kline, windowEnd *domain.Kline) []*domain.Kline {
	if len(htf) == 0 {
		return nil
	}
	n := sort.Search(len(htf), func(i int) bool {
		return htf[i].CloseTime.After(windowEnd.CloseTime)
	})
	if n == 0 {
		return nil
	}
	return htf[:n]
}

// anchorIndex locates the bar the signal was anchored to. AnchorTime is
// the close time of the anchor bar, and overlapping windows re-discover
// the same setups, so anchors are matched by close time rather than
// window position.
func anchorIndex(klines []*domain.Kline, sig *domain.Signal) int {
	n := sort.Search(len(klines), func(i int) bool {
		return !klines[i].CloseTime.Before(sig.AnchorTime)
	})
	if n < len(klines) && klines[n].CloseTime.Equal(sig.AnchorTime) {
		return n
	}
	return -1
}

func dedupeKey(sig *domain.Signal) string {
	return fmt.Sprintf("%s|%s|%d|%.8f|%.8f", sig.Symbol, sig.Direction, sig.AnchorTime.UnixMilli(), sig.Entry, sig.StopLoss)
}
