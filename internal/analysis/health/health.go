// Package health aggregates component health for the gateway.
package health

import "context"

// Status represents a component's health state.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// ComponentReport is the health of one dependency.
type ComponentReport struct {
	Component string `json:"component"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Checker probes one dependency. A nil error means healthy.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
	// Optional marks dependencies whose failure only degrades the service
	// instead of making it critical.
	Optional bool
}

func (c CheckerFunc) Name() string                    { return c.ComponentName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
