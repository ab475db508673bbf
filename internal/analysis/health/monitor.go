package health

import (
	"context"
	"time"
)

// Monitor runs the registered checkers and aggregates their reports.
type Monitor struct {
	checkers []CheckerFunc
	timeout  time.Duration
}

// NewMonitor creates a monitor with a per-check timeout.
func NewMonitor(checkers ...CheckerFunc) *Monitor {
	return &Monitor{checkers: checkers, timeout: 3 * time.Second}
}

// CheckHealth probes every component.
func (m *Monitor) CheckHealth(ctx context.Context) []ComponentReport {
	reports := make([]ComponentReport, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.Check(checkCtx)
		cancel()

		report := ComponentReport{Component: c.Name(), Status: StatusHealthy}
		if err != nil {
			report.Error = err.Error()
			if c.Optional {
				report.Status = StatusDegraded
			} else {
				report.Status = StatusCritical
			}
		}
		reports = append(reports, report)
	}
	return reports
}

// Aggregate reduces component reports to a single status, worst case wins.
func Aggregate(reports []ComponentReport) Status {
	status := StatusHealthy
	for _, r := range reports {
		if r.Status == StatusCritical {
			return StatusCritical
		}
		if r.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
