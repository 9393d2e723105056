package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.MarketDataClient interface using the go-binance library.
// Only public spot endpoints are used; API keys are optional and only raise
// per-request weight limits when present.
type Client struct {
	spotClient           *binance.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global binance.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		spotClient:           client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1121, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -1001, -1016: // Internal error / service shutting down
			mappedErr = ports.ErrMarketDataUnavailable
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.spotClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.spotClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs), nil
}

// GetTickerPrice retrieves the latest traded price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}

	return domainKlines, nil
}

// GetKlinesRange fetches all klines for a symbol/interval between start and end time.
// Binance caps each response at 1000 bars, so the request is paged forward by
// the close time of the last bar received.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "GetKlinesRange"
	var allKlines []*domain.Kline
	const maxLimit = 1000
	from := start

	for {
		klines, err := c.spotClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			dk, err := translateBinanceKline(bk, symbol, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			allKlines = append(allKlines, dk)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}

	return allKlines, nil
}

// StreamPrices starts a combined aggregated-trade WebSocket stream covering all
// given symbols and forwards each trade as a domain.PriceTick. The stream is
// reconnected with exponential backoff until the context is cancelled, the
// caller signals stopCh, or the attempt budget is exhausted.
func (c *Client) StreamPrices(ctx context.Context, symbols []string, handler func(tick domain.PriceTick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamPrices"
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one symbol is required for streaming", ports.ErrInvalidRequest)
	}
	wsCtx, cancelWs := context.WithCancel(ctx) // Cancellable context for the WS lifecycle

	// Wrapper for the domain handler to perform translation
	binanceHandler := func(event *binance.WsAggTradeEvent) {
		tick, err := translateAggTrade(event)
		if err != nil {
			// Translation failures are logged but do not trigger the caller's
			// error handler; one bad frame should not restart the stream.
			c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket trade event")
			return
		}
		handler(tick)
	}

	// Wrapper for the error handler to perform translation and logging
	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		c.logger.Warn(wsCtx, op+": WebSocket error reported", map[string]interface{}{"error": translatedErr})
		errHandler(translatedErr)
	}

	streamFields := map[string]interface{}{"symbols": strings.Join(symbols, ",")}

	// Reconnection loop
	go func() {
		defer cancelWs() // Ensure context is cancelled when this goroutine exits

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.", streamFields)
				return
			default:
				c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", map[string]interface{}{"symbols": strings.Join(symbols, ","), "attempt": attempt + 1})
				innerDoneCh, innerStopCh, connectErr := binance.WsCombinedAggTradeServe(symbols, binanceHandler, binanceErrHandler)

				if connectErr != nil {
					c.handleError(wsCtx, connectErr, op+" connection attempt")
					attempt++
					if attempt >= c.maxReconnectAttempts {
						c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"symbols": strings.Join(symbols, ","), "maxAttempts": c.maxReconnectAttempts})
						return
					}

					// Exponential backoff with a small jitter
					delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
					jitter := time.Duration(float64(delay) * 0.1 * float64(time.Millisecond))
					actualDelay := delay + jitter
					c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"symbols": strings.Join(symbols, ","), "attempt": attempt + 1, "delay": actualDelay.String()})

					select {
					case <-time.After(actualDelay):
						continue
					case <-wsCtx.Done():
						c.logger.Info(wsCtx, op+": Context cancelled during backoff.", streamFields)
						return
					}
				}

				// Connection successful
				c.logger.Info(wsCtx, op+": WebSocket connection established.", streamFields)
				attempt = 0

				// Wait for the inner connection to close or the context to be cancelled
				select {
				case <-innerDoneCh:
					c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", streamFields)
					// Loop continues and attempts reconnection
				case <-wsCtx.Done():
					c.logger.Info(wsCtx, op+": Context cancelled, stopping WebSocket.", streamFields)
					select {
					case innerStopCh <- struct{}{}:
						c.logger.Debug(wsCtx, op+": Stop signal sent to inner WebSocket.", streamFields)
					default:
						c.logger.Warn(wsCtx, op+": Failed to send stop signal to inner WebSocket (already closed?).", streamFields)
					}
					return
				}
			}
		}
	}()

	// doneCh signals when the reconnection loop exits (shutdown or max attempts).
	// stopCh lets the caller cancel the reconnection loop via wsCtx.
	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	// Link the external stopCh to the internal context cancellation
	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, cancelling WebSocket context.", streamFields)
			cancelWs()
		case <-wsCtx.Done():
			c.logger.Debug(ctx, op+": WebSocket context done, stop listener exiting.", streamFields)
		}
	}()

	// Close the external doneCh when the internal context is done
	go func() {
		<-wsCtx.Done()
		c.logger.Info(ctx, op+": WebSocket context done, closing external done channel.", streamFields)
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

func translateAggTrade(event *binance.WsAggTradeEvent) (domain.PriceTick, error) {
	if event == nil {
		return domain.PriceTick{}, errors.New("received nil trade event")
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("parsing trade price '%s': %w", event.Price, err)
	}
	return domain.PriceTick{
		Symbol: event.Symbol,
		Price:  price,
		Time:   time.UnixMilli(event.TradeTime),
	}, nil
}

func translateBinanceKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,   // Not present in the REST kline payload
		Interval:  interval, // Use passed interval
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   true, // Historical klines are always final
	}, nil
}
