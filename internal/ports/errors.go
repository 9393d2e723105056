package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Signal / Simulation Errors
	ErrInvalidSignal    = errors.New("signal rejected: inconsistent entry/stop/target")
	ErrInsufficientData = errors.New("insufficient historical data")

	// Market Data Errors
	ErrMarketDataUnavailable = errors.New("market data source is unavailable")
	ErrConnectionFailed      = errors.New("failed to connect to the market data source")
	ErrRateLimited           = errors.New("API rate limit exceeded")
	ErrStalePrice            = errors.New("no cached price available for symbol")

	// Analyzer Errors
	ErrAnalyzerUnavailable = errors.New("signal analyzer service is unavailable")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)
