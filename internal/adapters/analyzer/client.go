package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"smcPaperBot/internal/domain"
	"smcPaperBot/internal/ports"
)

const defaultTimeout = 30 * time.Second

// Client implements ports.SignalSource against the external pattern analyzer
// over HTTP. The analyzer receives a candle window and replies with zero or
// more trade proposals; this adapter never inspects how they were produced.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration for the analyzer client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  ports.Logger
}

// New creates a new analyzer client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for analyzer client")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: analyzer base URL is required", ports.ErrConfigurationError)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// candlePayload is the wire shape the analyzer expects for one bar.
type candlePayload struct {
	OpenTime  int64   `json:"openTime"`
	CloseTime int64   `json:"closeTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type analyzeRequest struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Candles   []candlePayload `json:"candles"`
	HTF       []candlePayload `json:"htfCandles,omitempty"`
}

type analyzeResponse struct {
	Success bool             `json:"success"`
	Signals []*domain.Signal `json:"signals"`
	Error   string           `json:"error,omitempty"`
}

// Analyze posts the candle window to the analyzer service and returns the
// signals it found. A nil htf window is sent as absent.
func (c *Client) Analyze(ctx context.Context, symbol string, timeframe string, window []*domain.Kline, htf []*domain.Kline) ([]*domain.Signal, error) {
	op := "Analyze"
	if len(window) == 0 {
		return nil, fmt.Errorf("%s: %w: empty candle window", op, ports.ErrInvalidRequest)
	}

	reqBody := analyzeRequest{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   toPayload(window),
	}
	if len(htf) > 0 {
		reqBody.HTF = toPayload(htf)
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}

	url := c.baseURL + "/api/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s canceled: %w: %w", op, ports.ErrContextCanceled, err)
		}
		c.logger.Error(ctx, err, op+": analyzer request failed", map[string]interface{}{"symbol": symbol, "timeframe": timeframe})
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrAnalyzerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%s: %w: status=%d body=%s", op, ports.ErrAnalyzerUnavailable, resp.StatusCode, string(body))
		c.logger.Error(ctx, err, op+": analyzer returned non-200", map[string]interface{}{"symbol": symbol, "status": resp.StatusCode})
		return nil, err
	}

	var analyzeResp analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&analyzeResp); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if !analyzeResp.Success && analyzeResp.Error != "" {
		return nil, fmt.Errorf("%s: %w: %s", op, ports.ErrAnalyzerUnavailable, analyzeResp.Error)
	}

	// The analyzer reports which timeframe and symbol it was asked about, but
	// the engine keys state off these fields, so normalize them here.
	for _, sig := range analyzeResp.Signals {
		if sig.Symbol == "" {
			sig.Symbol = symbol
		}
		if sig.Timeframe == "" {
			sig.Timeframe = timeframe
		}
		if sig.AnchorTime.IsZero() {
			sig.AnchorTime = window[len(window)-1].CloseTime
		}
	}

	c.logger.Debug(ctx, op+" completed", map[string]interface{}{"symbol": symbol, "timeframe": timeframe, "signals": len(analyzeResp.Signals)})
	return analyzeResp.Signals, nil
}

// HealthCheck verifies the analyzer service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	op := "HealthCheck"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ports.ErrAnalyzerUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %w: status=%d", op, ports.ErrAnalyzerUnavailable, resp.StatusCode)
	}
	return nil
}

func toPayload(klines []*domain.Kline) []candlePayload {
	out := make([]candlePayload, 0, len(klines))
	for _, k := range klines {
		out = append(out, candlePayload{
			OpenTime:  k.OpenTime.UnixMilli(),
			CloseTime: k.CloseTime.UnixMilli(),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}
	return out
}
