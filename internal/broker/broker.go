package broker

import (
	"context"
	"time"

	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// Constraints are the tradable-instrument limits a broker enforces on
// working orders. They come from the broker and are authoritative.
type Constraints struct {
	TickSize        float64
	MinStopDistance float64
	LotStep         float64
	MinVolume       float64
	MaxVolume       float64
}

// CandidateOrder is a raw order produced by the risk sizer, before broker
// normalization. At creation time reward distance / risk distance equals
// the configured R-multiple exactly.
type CandidateOrder struct {
	Symbol     string
	Direction  types.Side
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Volume     float64
	RiskAmount float64 // account currency at stake if the stop is hit
}

// RiskDistance returns the entry-to-stop price distance.
func (o CandidateOrder) RiskDistance() float64 {
	if o.Direction == types.SideBuy {
		return o.Entry - o.StopLoss
	}
	return o.StopLoss - o.Entry
}

// RewardDistance returns the entry-to-take-profit price distance.
func (o CandidateOrder) RewardDistance() float64 {
	if o.Direction == types.SideBuy {
		return o.TakeProfit - o.Entry
	}
	return o.Entry - o.TakeProfit
}

// NormalizedOrder is a CandidateOrder whose prices and volume satisfy the
// broker constraints simultaneously. Only normalized orders are submitted.
type NormalizedOrder struct {
	CandidateOrder
	ClientTag string    // session tag plus ULID, e.g. ORB20260826-01J...
	Expiry    time.Time // end of the exchange day; zero means GTC
}

// Placement is the broker's authoritative answer to an order submission.
type Placement struct {
	Accepted bool
	TicketID string
	Reason   string // populated on rejection
}

// Broker is the connectivity surface the engine depends on. All calls are
// fallible independently of local validation; a broker-side rejection is
// never answered by resubmitting.
//
// HasWorkingOrder reports whether an open order whose client tag starts
// with tagPrefix is working at the venue; the engine uses it to recognize
// its own orders after a restart. CancelOrder withdraws a working order by
// its exact client tag once it has outlived its expiry.
type Broker interface {
	InstrumentConstraints(ctx context.Context, symbol string) (Constraints, error)
	PlaceStopOrder(ctx context.Context, order NormalizedOrder) (Placement, error)
	HasWorkingOrder(ctx context.Context, symbol, tagPrefix string) (bool, error)
	CancelOrder(ctx context.Context, symbol, clientTag string) error
}
