package broker

import (
	"fmt"
	"math"

	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

// ConstraintAdapter normalizes candidate orders against an instrument's
// broker constraints. Normalization either yields a fully compliant order
// or fails; no partially adjusted order is ever emitted, and a failure is
// terminal for the current breakout signal.
type ConstraintAdapter struct {
	RMultiple  float64 // the ratio the candidate was built with
	RTolerance float64 // allowed drift after rounding
	WidenStops bool    // widen to the broker minimum instead of failing
}

// NewConstraintAdapter creates an adapter for the given R-multiple policy.
func NewConstraintAdapter(rMultiple, rTolerance float64, widenStops bool) *ConstraintAdapter {
	return &ConstraintAdapter{
		RMultiple:  rMultiple,
		RTolerance: rTolerance,
		WidenStops: widenStops,
	}
}

// Normalize applies, in order: tick-size rounding of the three prices,
// minimum-stop-distance enforcement, re-derivation of the volume from the
// candidate's dollar risk with lot-step rounding and min/max re-validation,
// and a final R-multiple tolerance check. It is idempotent: normalizing an
// already normalized order returns it unchanged.
func (a *ConstraintAdapter) Normalize(order CandidateOrder, c Constraints) (NormalizedOrder, error) {
	budget := order.RiskAmount
	if budget <= 0 {
		budget = order.Volume * order.RiskDistance()
	}

	out := order
	out.Entry = roundToStep(out.Entry, c.TickSize)
	out.StopLoss = roundToStep(out.StopLoss, c.TickSize)
	out.TakeProfit = roundToStep(out.TakeProfit, c.TickSize)

	if out.RiskDistance() <= 0 || out.RewardDistance() <= 0 {
		return NormalizedOrder{}, apperrors.NewConstraintViolation("constraint_adapter",
			fmt.Sprintf("degenerate order after tick rounding: entry=%v sl=%v tp=%v",
				out.Entry, out.StopLoss, out.TakeProfit))
	}

	if c.MinStopDistance > 0 {
		widened, err := a.enforceStopDistance(out, c)
		if err != nil {
			return NormalizedOrder{}, err
		}
		out = widened
	}

	// The stop may have moved, so the volume is re-derived from the dollar
	// risk the candidate was sized for: a wider stop shrinks the position,
	// it never raises the money at stake.
	if budget > 0 {
		out.Volume = budget / out.RiskDistance()
	}
	out.Volume = floorToStep(out.Volume, c.LotStep)
	if out.Volume <= 0 {
		return NormalizedOrder{}, apperrors.NewInsufficientRiskBudget("constraint_adapter",
			fmt.Sprintf("risk budget %v cannot carry stop distance %v at lot step %v",
				budget, out.RiskDistance(), c.LotStep))
	}
	if c.MinVolume > 0 && out.Volume < c.MinVolume {
		// Raising to the broker minimum would exceed the account risk cap,
		// so an undersized order is rejected rather than bumped.
		return NormalizedOrder{}, apperrors.NewConstraintViolation("constraint_adapter",
			fmt.Sprintf("volume %v below broker minimum %v", out.Volume, c.MinVolume))
	}
	if c.MaxVolume > 0 && out.Volume > c.MaxVolume {
		out.Volume = floorToStep(c.MaxVolume, c.LotStep)
	}
	out.RiskAmount = fixPrecision(out.Volume*out.RiskDistance(), c.LotStep)

	rr := out.RewardDistance() / out.RiskDistance()
	if math.Abs(rr-a.RMultiple) > a.RTolerance {
		return NormalizedOrder{}, apperrors.NewRiskRatioDistorted("constraint_adapter",
			fmt.Sprintf("rounding distorted R to %.4f (want %.2f within %.3f)",
				rr, a.RMultiple, a.RTolerance))
	}

	return NormalizedOrder{CandidateOrder: out}, nil
}

// enforceStopDistance checks that both the stop and the take-profit sit at
// least the broker minimum away from the entry. With widening enabled the
// stop is pushed out to the minimum (tick-aligned, away from the entry) and
// the take-profit is rebuilt from the widened risk so the R-multiple is
// preserved; the final tolerance check still applies.
func (a *ConstraintAdapter) enforceStopDistance(order CandidateOrder, c Constraints) (CandidateOrder, error) {
	risk := order.RiskDistance()
	reward := order.RewardDistance()
	minDist := ceilToStep(c.MinStopDistance, c.TickSize)

	if risk+stepTolerance(c.TickSize) >= minDist && reward+stepTolerance(c.TickSize) >= minDist {
		return order, nil
	}
	if !a.WidenStops {
		return CandidateOrder{}, apperrors.NewConstraintViolation("constraint_adapter",
			fmt.Sprintf("stop distance %v below broker minimum %v", math.Min(risk, reward), c.MinStopDistance))
	}

	if risk < minDist {
		risk = minDist
	}
	reward = roundToStep(risk*a.RMultiple, c.TickSize)
	if reward < minDist {
		reward = minDist
	}

	if order.Direction == types.SideBuy {
		order.StopLoss = roundToStep(order.Entry-risk, c.TickSize)
		order.TakeProfit = roundToStep(order.Entry+reward, c.TickSize)
	} else {
		order.StopLoss = roundToStep(order.Entry+risk, c.TickSize)
		order.TakeProfit = roundToStep(order.Entry-reward, c.TickSize)
	}
	return order, nil
}

// roundToStep snaps v to the nearest multiple of step.
func roundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return fixPrecision(math.Round(v/step)*step, step)
}

// floorToStep snaps v down to a multiple of step, so rounding never
// increases a volume past the risk budget.
func floorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return fixPrecision(math.Floor(v/step+stepTolerance(step))*step, step)
}

// ceilToStep snaps v up to a multiple of step.
func ceilToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return fixPrecision(math.Ceil(v/step-stepTolerance(step))*step, step)
}

// fixPrecision strips binary float noise introduced by the step
// multiplication. Eight decimals is finer than any broker step in use.
func fixPrecision(v, _ float64) float64 {
	return math.Round(v*1e8) / 1e8
}

func stepTolerance(step float64) float64 {
	return step * 1e-6
}
