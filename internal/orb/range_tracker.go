package orb

// OpeningRange is the high/low band established during the range window.
// It is immutable once frozen.
type OpeningRange struct {
	High    float64
	Low     float64
	Frozen  bool
	Samples int
}

// Width returns the price distance between the range extremes.
func (r OpeningRange) Width() float64 {
	return r.High - r.Low
}

// RangeTracker accumulates price extremes during the opening-range window
// and freezes the band at window close. Observations after the freeze are
// ignored, not errors.
type RangeTracker struct {
	rng       OpeningRange
	point     float64
	minPoints float64 // 0 disables
	maxPoints float64 // 0 disables
}

// NewRangeTracker creates a tracker with optional sanity bounds on the
// range width, expressed in points.
func NewRangeTracker(point, minPoints, maxPoints float64) *RangeTracker {
	return &RangeTracker{
		point:     point,
		minPoints: minPoints,
		maxPoints: maxPoints,
	}
}

// Observe folds one price into the running extremes.
func (t *RangeTracker) Observe(price float64) {
	if t.rng.Frozen {
		return
	}
	if t.rng.Samples == 0 {
		t.rng.High = price
		t.rng.Low = price
	} else {
		if price > t.rng.High {
			t.rng.High = price
		}
		if price < t.rng.Low {
			t.rng.Low = price
		}
	}
	t.rng.Samples++
}

// Freeze closes the range. Calling it again returns the already-frozen range.
func (t *RangeTracker) Freeze() OpeningRange {
	t.rng.Frozen = true
	return t.rng
}

// Range returns the current range snapshot.
func (t *RangeTracker) Range() OpeningRange {
	return t.rng
}

// Valid reports whether the frozen range can be traded. A range with no
// samples, a flat range, or a range outside the configured width bounds is
// invalid and the session ends as no-range.
func (t *RangeTracker) Valid() bool {
	r := t.rng
	if !r.Frozen || r.Samples == 0 || r.High <= r.Low {
		return false
	}
	if t.point > 0 {
		widthPts := r.Width() / t.point
		if t.minPoints > 0 && widthPts < t.minPoints {
			return false
		}
		if t.maxPoints > 0 && widthPts > t.maxPoints {
			return false
		}
	}
	return true
}
