package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"smcPaperBot/config"
	"smcPaperBot/internal/adapters/analyzer"
	"smcPaperBot/internal/adapters/binanceclient"
	"smcPaperBot/internal/adapters/logger"
	"smcPaperBot/internal/analytics"
	"smcPaperBot/internal/backtesting"
	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"
	"smcPaperBot/internal/utils"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: SYMBOLS from env)")
	timeframeFlag := flag.String("timeframe", "", "kline interval (default: TIMEFRAME from env)")
	dataDir := flag.String("data", "", "directory of kline CSVs (SYMBOL_TIMEFRAME.csv); fetches from Binance when empty")
	limit := flag.Int("limit", 1000, "bars to fetch per symbol when pulling from Binance")
	outDir := flag.String("out", "data", "directory for the per-symbol trade CSVs")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewConsole(cfg.LogLevel)
	ctx := context.Background()

	symbols := cfg.Symbols
	if *symbolsFlag != "" {
		symbols = nil
		for _, s := range strings.Split(*symbolsFlag, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}
	timeframe := cfg.Timeframe
	if *timeframeFlag != "" {
		timeframe = *timeframeFlag
	}

	// 2. Initialize the analyzer client; signals come from the external service.
	signalSource, err := analyzer.New(analyzer.Config{
		BaseURL: cfg.AnalyzerURL,
		Timeout: cfg.AnalyzerTimeout,
		Logger:  appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize analyzer client: %v", err)
	}
	if err := signalSource.HealthCheck(ctx); err != nil {
		log.Fatalf("FATAL: Analyzer service is not reachable at %s: %v", cfg.AnalyzerURL, err)
	}

	// 3. Load kline series per symbol, from CSV files or straight from Binance.
	series, err := loadSeries(ctx, appLogger, cfg, symbols, timeframe, *dataDir, *limit)
	if err != nil {
		log.Fatalf("FATAL: Failed to load kline data: %v", err)
	}

	// 4. Run the replay across all symbols.
	runner, err := backtesting.NewRunner(backtesting.Config{
		Timeframe:   timeframe,
		WindowSize:  cfg.BacktestWindowSize,
		StepSize:    cfg.BacktestStepSize,
		Lookforward: cfg.BacktestLookforward,
		Workers:     cfg.BacktestWorkers,
	}, signalSource, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to create backtest runner: %v", err)
	}

	results := runner.RunAll(ctx, series)

	// 5. Report per symbol, then combined.
	var allTrades []*domain.Trade
	for _, res := range results {
		if res.Err != nil {
			appLogger.Error(ctx, res.Err, "Backtest failed for symbol", map[string]interface{}{"symbol": res.Symbol})
			continue
		}
		printReport(res.Symbol+" ("+res.Timeframe+")", res.Report)
		fmt.Printf("  signals found: %d, skipped: %d, window errors: %d\n\n",
			res.SignalsFound, res.SignalsSkipped, res.WindowErrors)
		allTrades = append(allTrades, res.Trades...)

		if len(res.Trades) > 0 {
			if err := writeTrades(res, *outDir, timeframe); err != nil {
				appLogger.Error(ctx, err, "Error writing trades CSV", map[string]interface{}{"symbol": res.Symbol})
			}
		}
	}

	if len(results) > 1 {
		printReport("COMBINED", backtesting.Combined(results))
	}

	// 6. Loss breakdown over every simulated trade.
	failures := analytics.AnalyzeFailures(allTrades)
	if failures.LosingTrades > 0 {
		fmt.Printf("Losses: %d (avg %.2fR), near misses: %d, fast losses: %d\n",
			failures.LosingTrades, failures.AverageLossR, failures.NearMisses, failures.FastLosses)
		for _, p := range failures.ByPattern {
			fmt.Printf("  %-24s %d losses, avg %.2fR\n", p.Pattern, p.Count, p.AverageR())
		}
	}
}

func loadSeries(ctx context.Context, appLogger ports.Logger, cfg *config.Config, symbols []string, timeframe, dataDir string, limit int) (map[string]backtesting.SymbolData, error) {
	series := make(map[string]backtesting.SymbolData, len(symbols))

	if dataDir != "" {
		for _, sym := range symbols {
			klines, err := utils.ReadKlinesFromCSV(filepath.Join(dataDir, fmt.Sprintf("%s_%s.csv", sym, timeframe)))
			if err != nil {
				return nil, fmt.Errorf("loading %s %s: %w", sym, timeframe, err)
			}
			data := backtesting.SymbolData{Klines: klines}
			if htfInterval, ok := domain.HigherTimeframe(timeframe); ok {
				htf, err := utils.ReadKlinesFromCSV(filepath.Join(dataDir, fmt.Sprintf("%s_%s.csv", sym, htfInterval)))
				if err == nil {
					data.HTF = htf
				} else {
					appLogger.Warn(ctx, "No higher-timeframe CSV, running without it",
						map[string]interface{}{"symbol": sym, "interval": htfInterval})
				}
			}
			series[sym] = data
			appLogger.Info(ctx, "Loaded klines from CSV", map[string]interface{}{"symbol": sym, "count": len(klines)})
		}
		return series, nil
	}

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		return nil, err
	}

	for _, sym := range symbols {
		klines, err := client.GetKlines(ctx, sym, timeframe, limit)
		if err != nil {
			return nil, fmt.Errorf("fetching %s %s: %w", sym, timeframe, err)
		}
		data := backtesting.SymbolData{Klines: klines}
		if htfInterval, ok := domain.HigherTimeframe(timeframe); ok {
			htf, err := client.GetKlines(ctx, sym, htfInterval, limit)
			if err != nil {
				appLogger.Warn(ctx, "Higher-timeframe fetch failed, running without it",
					map[string]interface{}{"symbol": sym, "interval": htfInterval, "error": err.Error()})
			} else {
				data.HTF = htf
			}
		}
		series[sym] = data
		appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"symbol": sym, "count": len(klines)})
	}
	return series, nil
}

func printReport(title string, r *analytics.Report) {
	fmt.Printf("=== %s ===\n", title)
	if r == nil || r.TotalTrades == 0 {
		fmt.Println("  no trades")
		return
	}
	pf := fmt.Sprintf("%.2f", r.ProfitFactor)
	if math.IsInf(r.ProfitFactor, 1) {
		pf = "inf"
	}
	fmt.Printf("  trades: %d (W %d / L %d), win rate %.1f%%\n", r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate*100)
	fmt.Printf("  total %.2fR, avg %.2fR, expectancy %.2fR, profit factor %s\n", r.TotalR, r.AverageR, r.Expectancy, pf)
	fmt.Printf("  best %+.2fR, worst %+.2fR, max drawdown %.2fR, max run-up %.2fR\n", r.BestTrade, r.WorstTrade, r.MaxDrawdownR, r.MaxRunUpR)
	fmt.Printf("  avg bars in trade %.1f, breakeven %.0f%%, trailing %.0f%%, partial %.0f%%, timeout %.0f%%\n",
		r.AverageBarsInTrade, r.BreakevenRate*100, r.TrailingRate*100, r.PartialCloseRate*100, r.TimeoutRate*100)
	outcomes := make([]string, 0, len(r.Outcomes))
	for outcome := range r.Outcomes {
		outcomes = append(outcomes, string(outcome))
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		fmt.Printf("    %-22s %d\n", outcome, r.Outcomes[domain.Outcome(outcome)])
	}
}

func writeTrades(res *backtesting.Result, outDir, timeframe string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(outDir, fmt.Sprintf("backtest_%s_%s.csv", res.Symbol, timeframe))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return utils.WriteTradesToCSV(res.Trades, f)
}
