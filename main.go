package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"smcPaperBot/config"
	"smcPaperBot/internal/adapters/analyzer"
	"smcPaperBot/internal/adapters/binanceclient"
	"smcPaperBot/internal/adapters/logger"
	"smcPaperBot/internal/adapters/sqlite"
	"smcPaperBot/internal/paper"
	"smcPaperBot/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Market Data Client (Binance Adapter)
	marketClient, err := binanceclient.New(binanceclient.Config{
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

	// 5. Initialize Signal Analyzer Client
	signalSource, err := analyzer.New(analyzer.Config{
		BaseURL: cfg.AnalyzerURL,
		Timeout: cfg.AnalyzerTimeout,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize analyzer client")
		log.Fatalf("FATAL: Failed to initialize analyzer client: %v", err)
	}
	if err := signalSource.HealthCheck(ctx); err != nil {
		// The analyzer may still be starting; scans fail soft per symbol.
		appLogger.Warn(ctx, "Analyzer health check failed, continuing anyway", map[string]interface{}{"error": err.Error()})
	}
	appLogger.Info(ctx, "Analyzer client initialized", map[string]interface{}{"url": cfg.AnalyzerURL})

	// 6. Initialize Account Ledger
	ledger, err := risk.NewLedger(ctx, risk.Config{
		InitialBalance:      cfg.InitialBalance,
		RiskPerTrade:        cfg.RiskPerTrade,
		MaxPositionFraction: cfg.MaxPositionFraction,
		MaxOpenPositions:    cfg.MaxOpenPositions,
	}, repo, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize account ledger")
		log.Fatalf("FATAL: Failed to initialize account ledger: %v", err)
	}
	appLogger.Info(ctx, "Account ledger initialized", map[string]interface{}{"balance": ledger.Snapshot().Balance})

	// 7. Initialize Position Store and Trade Logger
	store := paper.NewPositionStore(repo, appLogger)
	trades := paper.NewTradeLogger(repo, appLogger, paper.DefaultLogCapacity)

	// 8. Initialize and run the Paper Trading Engine
	engine, err := paper.NewEngine(paper.EngineConfig{
		Symbols:         cfg.Symbols,
		Timeframe:       cfg.Timeframe,
		WindowSize:      cfg.ScanWindowSize,
		ScanEvery:       cfg.ScanInterval,
		MonitorEvery:    cfg.MonitorInterval,
		MaxHold:         cfg.MaxHold,
		MaxOrderAge:     cfg.MaxOrderAge,
		AdverseFraction: cfg.AdverseFraction,
		PriceStaleAfter: cfg.PriceStaleAfter,
	}, appLogger, marketClient, signalSource, store, ledger, trades)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize paper trading engine")
		log.Fatalf("FATAL: Failed to initialize paper trading engine: %v", err)
	}

	appLogger.Info(ctx, "Starting paper trading engine...")
	if err := engine.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(ctx, err, "Engine exited with error")
		log.Fatalf("Engine exited with error: %v", err)
	}
	appLogger.Info(ctx, "Engine stopped.")
}
