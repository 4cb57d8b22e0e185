package orb

import (
	"math"
	"time"

	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// ATR is a streaming Average True Range over minute candles built from the
// tick stream. It exists for the ATR-relative confirmation margin: the
// margin is resolved once, when the range freezes.
type ATR struct {
	period      int
	value       float64
	count       int
	lastClose   float64
	initialized bool

	cur      types.OHLCV
	curOpen  bool
	curStart time.Time
}

// NewATR creates an ATR with Wilder smoothing over the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// ObserveTick folds a tick into the current minute candle, rolling the
// candle and updating the ATR when the minute boundary passes.
func (a *ATR) ObserveTick(tick types.Tick) {
	mid := tick.Mid()
	start := tick.Timestamp.Truncate(time.Minute)

	if !a.curOpen {
		a.openCandle(start, mid)
		return
	}
	if start.After(a.curStart) {
		a.closeCandle()
		a.openCandle(start, mid)
		return
	}

	a.cur.Close = mid
	if mid > a.cur.High {
		a.cur.High = mid
	}
	if mid < a.cur.Low {
		a.cur.Low = mid
	}
}

func (a *ATR) openCandle(start time.Time, price float64) {
	a.cur = types.OHLCV{Open: price, High: price, Low: price, Close: price, Timestamp: start}
	a.curStart = start
	a.curOpen = true
}

func (a *ATR) closeCandle() {
	tr := a.cur.High - a.cur.Low
	if a.initialized {
		tr = math.Max(tr, math.Max(
			math.Abs(a.cur.High-a.lastClose),
			math.Abs(a.cur.Low-a.lastClose),
		))
	}
	a.lastClose = a.cur.Close
	a.initialized = true

	// Wilder smoothing: simple average until the period fills, then blend.
	a.count++
	if a.count <= a.period {
		a.value += (tr - a.value) / float64(a.count)
	} else {
		a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	}
}

// Value returns the current ATR, or 0 before any candle has closed.
func (a *ATR) Value() float64 {
	return a.value
}

// Ready reports whether at least one full candle has been folded in.
func (a *ATR) Ready() bool {
	return a.count > 0
}

// EffectiveMargin resolves the confirmation margin for a session. In
// absolute mode the configured margin is used as-is; in ATR mode it is a
// multiple of the ATR at range freeze. An unready ATR falls back to the
// absolute interpretation so an illiquid open never yields a zero margin.
func EffectiveMargin(cfg config.BreakoutConfig, atr *ATR) float64 {
	if cfg.MarginMode == config.MarginATRRelative && atr != nil && atr.Ready() {
		return cfg.ConfirmationMargin * atr.Value()
	}
	return cfg.ConfirmationMargin
}
