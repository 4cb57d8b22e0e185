package feed

import (
	"context"

	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// PriceFeed produces a lazy, time-ordered, possibly infinite sequence of
// bid/ask ticks for one instrument. The stream may gap or duplicate; the
// engine drops events that are not newer than the last one it processed.
// The returned channel is closed when the feed ends or ctx is cancelled.
type PriceFeed interface {
	Ticks(ctx context.Context) (<-chan types.Tick, error)
}
