package ports

import (
	"context"
	"time"

	"smcPaperBot/internal/domain"
)

// MarketDataClient defines the interface for retrieving historical and
// streaming market data. This abstraction decouples the engine from any
// specific exchange implementation.
type MarketDataClient interface {
	// GetKlines retrieves historical klines/candlestick data for the given symbol.
	// Results are ordered by open time ascending.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// StreamPrices starts a streaming price feed for the given symbols.
	// It takes handlers for processing domain.PriceTick events and errors.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamPrices(ctx context.Context, symbols []string, handler func(tick domain.PriceTick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// Ping checks the connectivity to the market data API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current server time from the data source.
	GetServerTime(ctx context.Context) (time.Time, error)
}
