package orb

import (
	"time"

	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// Zone classifies a tick against the frozen range.
type Zone int

const (
	ZoneInside Zone = iota
	ZoneAboveHigh
	ZoneBelowLow
)

func (z Zone) String() string {
	switch z {
	case ZoneInside:
		return "INSIDE"
	case ZoneAboveHigh:
		return "ABOVE_HIGH"
	case ZoneBelowLow:
		return "BELOW_LOW"
	default:
		return "UNKNOWN"
	}
}

// Signal is a confirmed breakout. At most one is produced per session;
// the first confirmation wins and later opposite-direction breaks are
// ignored.
type Signal struct {
	Direction   types.Side
	Price       float64
	ConfirmedAt time.Time
	Strength    int // consecutive observations beyond the level
}

// Detector consumes ticks during the watch window and confirms a breakout
// when price is beyond a range extreme by at least the margin for the
// configured number of consecutive observations.
//
// An up-break is judged on the ask, a down-break on the bid: those are the
// prices a stop order on the respective side would fill against.
type Detector struct {
	rng          OpeningRange
	margin       float64
	confirmCount int

	upStreak   int
	downStreak int
	signal     *Signal
}

// NewDetector builds a detector over a frozen, valid range. The margin is
// absolute; ATR-relative configurations resolve it via EffectiveMargin
// before construction.
func NewDetector(rng OpeningRange, margin float64, confirmCount int) *Detector {
	if confirmCount < 1 {
		confirmCount = 1
	}
	return &Detector{
		rng:          rng,
		margin:       margin,
		confirmCount: confirmCount,
	}
}

// Classify places a tick relative to the margin-adjusted range levels.
func (d *Detector) Classify(tick types.Tick) Zone {
	switch {
	case tick.Ask >= d.rng.High+d.margin:
		return ZoneAboveHigh
	case tick.Bid <= d.rng.Low-d.margin:
		return ZoneBelowLow
	default:
		return ZoneInside
	}
}

// Observe processes one tick. It returns a non-nil Signal exactly once, on
// the confirming tick; every call after confirmation returns nil.
func (d *Detector) Observe(tick types.Tick) *Signal {
	if d.signal != nil {
		return nil
	}

	switch d.Classify(tick) {
	case ZoneAboveHigh:
		d.upStreak++
		d.downStreak = 0
		if d.upStreak >= d.confirmCount {
			d.signal = &Signal{
				Direction:   types.SideBuy,
				Price:       tick.Ask,
				ConfirmedAt: tick.Timestamp,
				Strength:    d.upStreak,
			}
			return d.signal
		}
	case ZoneBelowLow:
		d.downStreak++
		d.upStreak = 0
		if d.downStreak >= d.confirmCount {
			d.signal = &Signal{
				Direction:   types.SideSell,
				Price:       tick.Bid,
				ConfirmedAt: tick.Timestamp,
				Strength:    d.downStreak,
			}
			return d.signal
		}
	default:
		d.upStreak = 0
		d.downStreak = 0
	}
	return nil
}

// Signal returns the confirmed breakout, or nil while none is confirmed.
func (d *Detector) Signal() *Signal {
	return d.signal
}
