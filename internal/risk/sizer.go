package risk

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
	"github.com/ducminhle1904/orb-breakout-bot/internal/orb"
	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// Sizer turns a confirmed breakout into a candidate order. All arithmetic
// is pure; broker constraints are applied later by the constraint adapter.
type Sizer struct {
	cfg config.RiskConfig
}

func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size builds the candidate order for a breakout signal over a frozen
// range. The entry price is resolved by the caller according to the
// configured entry policy (confirmation tick or next tick); the stop sits
// on the opposite side of the range plus the configured buffer, and the
// take-profit is placed so reward/risk equals the configured R-multiple
// exactly.
//
// When the computed volume floors to zero the account risk budget cannot
// carry the stop distance, and sizing fails terminally with
// InsufficientRiskBudget.
func (s *Sizer) Size(symbol string, signal *orb.Signal, rng orb.OpeningRange, entry float64) (broker.CandidateOrder, error) {
	var stop float64
	if signal.Direction == types.SideBuy {
		stop = rng.Low - s.cfg.StopBuffer
	} else {
		stop = rng.High + s.cfg.StopBuffer
	}

	riskDist := entry - stop
	if signal.Direction == types.SideSell {
		riskDist = stop - entry
	}
	if riskDist <= 0 {
		return broker.CandidateOrder{}, apperrors.NewInsufficientRiskBudget("risk_sizer",
			fmt.Sprintf("non-positive risk distance: entry=%v stop=%v", entry, stop))
	}

	var takeProfit float64
	if signal.Direction == types.SideBuy {
		takeProfit = entry + riskDist*s.cfg.RMultiple
	} else {
		takeProfit = entry - riskDist*s.cfg.RMultiple
	}

	volume := floorTo(s.cfg.AccountRiskAmount/riskDist, s.cfg.VolumePrecision)
	if volume <= 0 {
		return broker.CandidateOrder{}, apperrors.NewInsufficientRiskBudget("risk_sizer",
			fmt.Sprintf("volume rounds to zero: risk budget %v over stop distance %v",
				s.cfg.AccountRiskAmount, riskDist))
	}

	return broker.CandidateOrder{
		Symbol:     symbol,
		Direction:  signal.Direction,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: takeProfit,
		Volume:     volume,
		RiskAmount: volume * riskDist,
	}, nil
}

// floorTo floors v to the given number of decimals, so the sized volume
// never exceeds the configured risk cap.
func floorTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Floor(v*mult) / mult
}
