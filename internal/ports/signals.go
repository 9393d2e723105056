package ports

import (
	"context"

	"smcPaperBot/internal/domain"
)

// SignalSource produces trade proposals from a window of price data.
// How patterns are found is not this engine's concern; the analyzer is an
// external collaborator behind this interface.
type SignalSource interface {
	// Analyze inspects the primary window plus an optional higher-timeframe
	// companion window and returns zero or more signals. A nil htf window is
	// valid. Implementations must not retain the slices.
	Analyze(ctx context.Context, symbol string, timeframe string, window []*domain.Kline, htf []*domain.Kline) ([]*domain.Signal, error)
}
