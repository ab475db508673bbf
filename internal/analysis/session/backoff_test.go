package session

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoffDelay_ExponentialAtCenter(t *testing.T) {
	center := func() float64 { return 0.5 } // factor exactly 1.0

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
	}
	var last time.Duration
	for _, tc := range cases {
		got := backoffDelay(5*time.Second, tc.attempt, last, center)
		if got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
		last = got
	}
}

func TestBackoffDelay_JitterBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		d := backoffDelay(5*time.Second, 1, 0, rng.Float64)
		if d < 4*time.Second || d > 6*time.Second {
			t.Fatalf("delay %v outside ±20%% of 5s", d)
		}
	}
}

func TestBackoffDelay_NeverDecreases(t *testing.T) {
	// Even when the kind (and thus base delay) shrinks mid-session, or the
	// jitter rolls low, the scheduled delay never drops below the previous.
	rng := rand.New(rand.NewSource(42))
	last := time.Duration(0)
	bases := []time.Duration{5 * time.Second, 2 * time.Second, 2 * time.Second, 5 * time.Second}
	for attempt := 1; attempt <= len(bases); attempt++ {
		d := backoffDelay(bases[attempt-1], attempt, last, rng.Float64)
		if d < last {
			t.Fatalf("attempt %d: delay shrank from %v to %v", attempt, last, d)
		}
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive delay %v", attempt, d)
		}
		last = d
	}
}

func TestBackoffDelay_AlwaysPositive(t *testing.T) {
	if d := backoffDelay(0, 1, 0, func() float64 { return 0 }); d <= 0 {
		t.Errorf("expected positive delay for zero base, got %v", d)
	}
}
