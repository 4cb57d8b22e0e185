package orb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeTrackerExtremes(t *testing.T) {
	tr := NewRangeTracker(0.01, 0, 0)
	for _, p := range []float64{102, 100, 105, 101.5} {
		tr.Observe(p)
	}
	rng := tr.Freeze()

	assert.Equal(t, 105.0, rng.High)
	assert.Equal(t, 100.0, rng.Low)
	assert.Equal(t, 5.0, rng.Width())
	assert.Equal(t, 4, rng.Samples)
	assert.True(t, tr.Valid())
}

func TestRangeTrackerZeroObservations(t *testing.T) {
	tr := NewRangeTracker(0.01, 0, 0)
	rng := tr.Freeze()

	assert.True(t, rng.Frozen)
	assert.Zero(t, rng.Samples)
	assert.False(t, tr.Valid())
}

func TestRangeTrackerFlatRangeInvalid(t *testing.T) {
	tr := NewRangeTracker(0.01, 0, 0)
	tr.Observe(100)
	tr.Observe(100)
	tr.Freeze()

	assert.False(t, tr.Valid())
}

func TestRangeTrackerIgnoresObservationsAfterFreeze(t *testing.T) {
	tr := NewRangeTracker(0.01, 0, 0)
	tr.Observe(100)
	tr.Observe(105)
	tr.Freeze()
	tr.Observe(200)

	assert.Equal(t, 105.0, tr.Range().High)
	assert.Equal(t, 2, tr.Range().Samples)
}

func TestRangeTrackerWidthBounds(t *testing.T) {
	// width 5.00 over point 0.01 is 500 points
	cases := []struct {
		name      string
		minPoints float64
		maxPoints float64
		valid     bool
	}{
		{"within bounds", 100, 1000, true},
		{"below minimum", 600, 0, false},
		{"above maximum", 0, 400, false},
		{"bounds disabled", 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewRangeTracker(0.01, tc.minPoints, tc.maxPoints)
			tr.Observe(100)
			tr.Observe(105)
			tr.Freeze()
			assert.Equal(t, tc.valid, tr.Valid())
		})
	}
}

func TestRangeTrackerFreezeIdempotent(t *testing.T) {
	tr := NewRangeTracker(0.01, 0, 0)
	tr.Observe(100)
	tr.Observe(105)
	first := tr.Freeze()
	second := tr.Freeze()

	assert.Equal(t, first, second)
}
