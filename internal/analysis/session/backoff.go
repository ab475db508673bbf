package session

import (
	"math"
	"time"
)

// jitterSpread is the fraction of the computed delay randomized around the
// midpoint, i.e. the effective factor is in [1-spread, 1+spread].
const jitterSpread = 0.2

// backoffDelay computes the automatic retry delay before attempt
// (attemptNumber+1): base * 2^(attemptNumber-1), with bounded jitter, clamped
// so successive scheduled delays within one session never decrease.
//
// jitter must return a value in [0, 1).
func backoffDelay(base time.Duration, attemptNumber int, lastDelay time.Duration, jitter func() float64) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	raw := float64(base) * math.Pow(2, float64(attemptNumber-1))
	factor := 1 - jitterSpread + 2*jitterSpread*jitter()
	d := time.Duration(raw * factor)

	if d < lastDelay {
		d = lastDelay
	}
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}
