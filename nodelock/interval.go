package nodelock

import (
	"fmt"
	"time"
)

// Interval is an immutable time window. A zero bound is unbounded on that side.
type Interval struct {
	from time.Time
	to   time.Time
}

// NewInterval returns the window [from, to]. Either bound may be the zero
// time. It fails with ErrInvalidInterval when both are set and to precedes from.
func NewInterval(from, to time.Time) (Interval, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return Interval{}, fmt.Errorf("%w: %s is before %s", ErrInvalidInterval,
			to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return Interval{from: from, to: to}, nil
}

// MustInterval is like NewInterval but panics on error.
func MustInterval(from, to time.Time) Interval {
	iv, err := NewInterval(from, to)
	if err != nil {
		panic(err)
	}
	return iv
}

// From returns the lower bound, or the zero time when unbounded.
func (iv Interval) From() time.Time { return iv.from }

// To returns the upper bound, or the zero time when unbounded.
func (iv Interval) To() time.Time { return iv.to }

// IsUnbounded reports whether neither bound is set.
func (iv Interval) IsUnbounded() bool {
	return iv.from.IsZero() && iv.to.IsZero()
}

// Duration returns the length of the window. The second result is false
// when either side is unbounded.
func (iv Interval) Duration() (time.Duration, bool) {
	if iv.from.IsZero() || iv.to.IsZero() {
		return 0, false
	}
	return iv.to.Sub(iv.from), true
}

// Contains reports whether t lies inside the window. Both ends are inclusive.
func (iv Interval) Contains(t time.Time) bool {
	if !iv.from.IsZero() && t.Before(iv.from) {
		return false
	}
	if !iv.to.IsZero() && t.After(iv.to) {
		return false
	}
	return true
}

// Equal reports whether both intervals describe the same instants.
func (iv Interval) Equal(other Interval) bool {
	return iv.from.Equal(other.from) && iv.to.Equal(other.to)
}
