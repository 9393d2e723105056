package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smcPaperBot/config"
	"smcPaperBot/internal/adapters/binanceclient"
	"smcPaperBot/internal/adapters/logger"
	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/utils"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: SYMBOLS from env)")
	timeframeFlag := flag.String("timeframe", "", "kline interval (default: TIMEFRAME from env)")
	months := flag.Int("months", 3, "how many months of history to fetch")
	outDir := flag.String("out", "data", "output directory for CSV files")
	withHTF := flag.Bool("htf", true, "also fetch the higher-timeframe companion series")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewConsole(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

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

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create output directory: %v", err)
	}

	end := time.Now()
	start := end.AddDate(0, -*months, 0)

	intervals := []string{timeframe}
	if *withHTF {
		if htf, ok := domain.HigherTimeframe(timeframe); ok {
			intervals = append(intervals, htf)
		}
	}

	for _, symbol := range symbols {
		for _, interval := range intervals {
			fmt.Printf("Fetching klines for %s %s from %s to %s...\n",
				symbol, interval, start.Format("2006-01-02"), end.Format("2006-01-02"))
			klines, err := binanceClient.GetKlinesRange(ctx, symbol, interval, start, end)
			if err != nil {
				appLogger.Error(ctx, err, "Error fetching klines", map[string]interface{}{"symbol": symbol, "interval": interval})
				log.Fatalf("Error fetching klines: %v", err)
			}
			appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"symbol": symbol, "interval": interval, "count": len(klines)})

			filename := filepath.Join(*outDir, fmt.Sprintf("%s_%s.csv", symbol, interval))
			if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
				appLogger.Error(ctx, err, "Error writing CSV")
				log.Fatalf("Error writing CSV: %v", err)
			}
			appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
		}
	}
}
