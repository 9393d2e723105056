package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"smcPaperBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API (optional; public market data works without keys)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Analyzer Service
	AnalyzerURL     string
	AnalyzerTimeout time.Duration

	// Trading Parameters
	Symbols             []string
	Timeframe           string
	InitialBalance      float64 // Paper account starting balance in quote currency
	RiskPerTrade        float64 // Fraction of balance risked per trade (e.g., 0.02 for 2%)
	MaxPositionFraction float64 // Cap on position notional as a fraction of balance
	MaxOpenPositions    int     // Max concurrent open + pending positions

	// Engine Timing
	ScanInterval    time.Duration // How often to scan for new signals
	MonitorInterval time.Duration // How often to evaluate open positions
	MaxHold         time.Duration // Force-close positions older than this
	MaxOrderAge     time.Duration // Cancel unfilled limit orders older than this
	AdverseFraction float64       // Cancel pending orders when price runs this far away
	PriceStaleAfter time.Duration // Ignore cached prices older than this
	ScanWindowSize  int           // Bars sent to the analyzer per scan

	// Backtesting
	BacktestWindowSize  int
	BacktestStepSize    int
	BacktestLookforward int
	BacktestWorkers     int

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Analyzer Service
	cfg.AnalyzerURL = getEnv("ANALYZER_URL", "http://localhost:3001")
	if cfg.AnalyzerURL == "" {
		errs = append(errs, "ANALYZER_URL must be set")
	}
	analyzerTimeoutSeconds := getEnvAsInt("ANALYZER_TIMEOUT_SECONDS", 30)
	if analyzerTimeoutSeconds <= 0 {
		errs = append(errs, "ANALYZER_TIMEOUT_SECONDS must be positive")
	}
	cfg.AnalyzerTimeout = time.Duration(analyzerTimeoutSeconds) * time.Second

	// Trading Parameters
	symbolsStr := getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")
	for _, s := range strings.Split(symbolsStr, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}

	cfg.Timeframe = getEnv("TIMEFRAME", "1h")
	if cfg.Timeframe == "" {
		errs = append(errs, "TIMEFRAME must be set")
	}

	cfg.InitialBalance, err = getEnvAsFloatRequired("INITIAL_BALANCE", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_BALANCE: %v", err))
	} else if cfg.InitialBalance <= 0 {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}

	cfg.RiskPerTrade, err = getEnvAsFloatRequired("RISK_PER_TRADE", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PER_TRADE: %v", err))
	} else if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade >= 1.0 {
		errs = append(errs, "RISK_PER_TRADE must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MaxPositionFraction, err = getEnvAsFloatRequired("MAX_POSITION_FRACTION", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITION_FRACTION: %v", err))
	} else if cfg.MaxPositionFraction <= 0 || cfg.MaxPositionFraction > 1.0 {
		errs = append(errs, "MAX_POSITION_FRACTION must be between 0.0 (exclusive) and 1.0 (inclusive)")
	}

	cfg.MaxOpenPositions, err = getEnvAsIntRequired("MAX_OPEN_POSITIONS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_OPEN_POSITIONS: %v", err))
	} else if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}

	// Engine Timing
	cfg.ScanInterval = getDurationMinutes("SCAN_INTERVAL_MINUTES", 5, &errs)
	cfg.MonitorInterval = getDurationSeconds("MONITOR_INTERVAL_SECONDS", 10, &errs)
	cfg.MaxHold = getDurationMinutes("MAX_HOLD_MINUTES", 48*60, &errs)
	cfg.MaxOrderAge = getDurationMinutes("MAX_ORDER_AGE_MINUTES", 30, &errs)
	cfg.PriceStaleAfter = getDurationSeconds("PRICE_STALE_SECONDS", 120, &errs)

	cfg.AdverseFraction, err = getEnvAsFloatRequired("ADVERSE_FRACTION", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ADVERSE_FRACTION: %v", err))
	} else if cfg.AdverseFraction <= 0 || cfg.AdverseFraction >= 1.0 {
		errs = append(errs, "ADVERSE_FRACTION must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.ScanWindowSize = getEnvAsInt("SCAN_WINDOW_SIZE", 500)
	if cfg.ScanWindowSize <= 0 {
		errs = append(errs, "SCAN_WINDOW_SIZE must be positive")
	}

	// Backtesting
	cfg.BacktestWindowSize = getEnvAsInt("BACKTEST_WINDOW_SIZE", 500)
	cfg.BacktestStepSize = getEnvAsInt("BACKTEST_STEP_SIZE", 10)
	cfg.BacktestLookforward = getEnvAsInt("BACKTEST_LOOKFORWARD", 100)
	cfg.BacktestWorkers = getEnvAsInt("BACKTEST_WORKERS", 4)
	if cfg.BacktestWindowSize <= 0 || cfg.BacktestStepSize <= 0 || cfg.BacktestLookforward <= 0 || cfg.BacktestWorkers <= 0 {
		errs = append(errs, "backtest window, step, lookforward and workers must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/paper_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// For non-required fields, default is acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getDurationMinutes(key string, defaultMinutes int, errs *[]string) time.Duration {
	minutes := getEnvAsInt(key, defaultMinutes)
	if minutes <= 0 {
		*errs = append(*errs, key+" must be positive")
	}
	return time.Duration(minutes) * time.Minute
}

func getDurationSeconds(key string, defaultSeconds int, errs *[]string) time.Duration {
	seconds := getEnvAsInt(key, defaultSeconds)
	if seconds <= 0 {
		*errs = append(*errs, key+" must be positive")
	}
	return time.Duration(seconds) * time.Second
}
