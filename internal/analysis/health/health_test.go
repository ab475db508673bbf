package health

import (
	"context"
	"errors"
	"testing"
)

func TestMonitor_AggregateWorstCaseWins(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	boom := func(ctx context.Context) error { return errors.New("down") }

	m := NewMonitor(
		CheckerFunc{ComponentName: "upstream", Fn: ok},
		CheckerFunc{ComponentName: "cache", Fn: boom, Optional: true},
	)
	reports := m.CheckHealth(context.Background())
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if got := Aggregate(reports); got != StatusDegraded {
		t.Errorf("expected degraded, got %s", got)
	}

	m = NewMonitor(
		CheckerFunc{ComponentName: "upstream", Fn: boom},
		CheckerFunc{ComponentName: "cache", Fn: boom, Optional: true},
	)
	if got := Aggregate(m.CheckHealth(context.Background())); got != StatusCritical {
		t.Errorf("expected critical, got %s", got)
	}

	m = NewMonitor(CheckerFunc{ComponentName: "upstream", Fn: ok})
	if got := Aggregate(m.CheckHealth(context.Background())); got != StatusHealthy {
		t.Errorf("expected healthy, got %s", got)
	}
}
