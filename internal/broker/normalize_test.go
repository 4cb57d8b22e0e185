package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
	"github.com/ducminhle1904/orb-breakout-bot/pkg/types"
)

func buyCandidate() CandidateOrder {
	return CandidateOrder{
		Symbol:     "BTCUSDT",
		Direction:  types.SideBuy,
		Entry:      105.25,
		StopLoss:   100.00,
		TakeProfit: 115.75,
		Volume:     100,
	}
}

func looseConstraints() Constraints {
	return Constraints{TickSize: 0.01, LotStep: 0.01, MinVolume: 0.01}
}

func TestNormalizeCompliantOrderUnchanged(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, false)

	out, err := a.Normalize(buyCandidate(), looseConstraints())
	require.NoError(t, err)
	assert.Equal(t, 105.25, out.Entry)
	assert.Equal(t, 100.00, out.StopLoss)
	assert.Equal(t, 115.75, out.TakeProfit)
	assert.Equal(t, 100.0, out.Volume)
}

func TestNormalizeIdempotent(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, true)
	c := Constraints{TickSize: 0.05, MinStopDistance: 0.5, LotStep: 0.1, MinVolume: 0.1}

	in := buyCandidate()
	in.Entry, in.Volume = 105.27, 99.97

	first, err := a.Normalize(in, c)
	require.NoError(t, err)
	second, err := a.Normalize(first.CandidateOrder, c)
	require.NoError(t, err)
	assert.Equal(t, first.CandidateOrder, second.CandidateOrder)
}

func TestNormalizeSnapsPricesToTick(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, false)
	c := looseConstraints()
	c.TickSize = 0.05

	in := buyCandidate()
	in.Entry = 105.27 // snaps to 105.25

	out, err := a.Normalize(in, c)
	require.NoError(t, err)
	assert.Equal(t, 105.25, out.Entry)
	assert.Equal(t, 100.00, out.StopLoss)
	assert.Equal(t, 115.75, out.TakeProfit)
}

func TestNormalizeCoarseTickDistortsR(t *testing.T) {
	// a 0.50 tick moves the entry enough that reward/risk drifts past the
	// tolerance; the order is refused, never silently reshaped
	a := NewConstraintAdapter(2, 0.05, false)
	c := looseConstraints()
	c.TickSize = 0.5

	in := buyCandidate()
	in.Entry = 105.30
	in.TakeProfit = 115.90

	_, err := a.Normalize(in, c)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryRiskRatio))
}

func TestNormalizeMinStopDistanceRejects(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, false)
	c := looseConstraints()
	c.MinStopDistance = 8.0

	_, err := a.Normalize(buyCandidate(), c)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryConstraint))
}

func TestNormalizeMinStopDistanceWidens(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, true)
	c := looseConstraints()
	c.MinStopDistance = 8.0

	out, err := a.Normalize(buyCandidate(), c)
	require.NoError(t, err)

	// the stop sits at the broker minimum and the take-profit is rebuilt so
	// the ratio survives the widening
	assert.InDelta(t, 8.0, out.RiskDistance(), 1e-6)
	assert.InDelta(t, 2.0, out.RewardDistance()/out.RiskDistance(), 0.05)
}

func TestNormalizeWidenedStopKeepsRiskBounded(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, true)
	c := looseConstraints()
	c.MinStopDistance = 8.0

	in := buyCandidate()
	in.RiskAmount = 525 // sized upstream against the original 5.25 stop distance

	out, err := a.Normalize(in, c)
	require.NoError(t, err)

	// widening the stop shrinks the position so the dollar risk stays
	// inside the budget the sizer allotted
	assert.InDelta(t, 8.0, out.RiskDistance(), 1e-6)
	assert.InDelta(t, 65.62, out.Volume, 1e-9)
	assert.LessOrEqual(t, out.Volume*out.RiskDistance(), 525.0)
	assert.InDelta(t, out.Volume*out.RiskDistance(), out.RiskAmount, 1e-6)
}

func TestNormalizeWidenedStopExhaustsBudget(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, true)
	c := looseConstraints()
	c.MinStopDistance = 8.0
	c.LotStep = 100 // whole-contract venue

	in := buyCandidate()
	in.RiskAmount = 525

	// 525 of budget over an 8.0 stop floors to zero contracts
	_, err := a.Normalize(in, c)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryRiskBudget))
}

func TestNormalizeVolumeFloorsToLotStep(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, false)
	c := looseConstraints()
	c.LotStep = 0.1

	in := buyCandidate()
	in.Volume = 99.97

	out, err := a.Normalize(in, c)
	require.NoError(t, err)
	assert.InDelta(t, 99.9, out.Volume, 1e-9)
}

func TestNormalizeVolumeBelowMinimumRejected(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, false)
	c := looseConstraints()
	c.MinVolume = 1.0

	in := buyCandidate()
	in.Volume = 0.4

	// bumping up to the minimum would overshoot the risk budget
	_, err := a.Normalize(in, c)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryConstraint))
}

func TestNormalizeVolumeClampedToMaximum(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, false)
	c := looseConstraints()
	c.MaxVolume = 50

	out, err := a.Normalize(buyCandidate(), c)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, out.Volume, 1e-9)
}

func TestNormalizeDegenerateAfterRounding(t *testing.T) {
	a := NewConstraintAdapter(2, 0.05, false)
	c := looseConstraints()
	c.TickSize = 1.0

	in := buyCandidate()
	in.Entry = 100.3
	in.StopLoss = 100.2 // both round to 100
	in.TakeProfit = 100.5

	_, err := a.Normalize(in, c)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryConstraint))
}

func TestStepHelpers(t *testing.T) {
	assert.Equal(t, 105.25, roundToStep(105.27, 0.05))
	assert.Equal(t, 99.9, floorToStep(99.97, 0.1))
	assert.Equal(t, 0.5, ceilToStep(0.41, 0.1))
	// exact multiples survive all three
	assert.Equal(t, 100.0, roundToStep(100.0, 0.01))
	assert.Equal(t, 100.0, floorToStep(100.0, 0.01))
	assert.Equal(t, 100.0, ceilToStep(100.0, 0.01))
}
