// Package health runs the dependency checks the indexer performs before it touches the index.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult

	errs []error
}

// Err joins the failures of all checks in registration order, or returns nil.
func (r Report) Err() error {
	return errors.Join(r.errs...)
}

type check struct {
	name string
	fn   CheckFunc
}

// Service coordinates health checks.
type Service struct {
	checks  []check
	timeout time.Duration
}

// New creates a Service. timeout bounds each check; 0 means no limit.
func New(timeout time.Duration) *Service {
	return &Service{timeout: timeout}
}

// Add registers a named check. A nil fn is ignored.
func (s *Service) Add(name string, fn CheckFunc) *Service {
	if fn != nil {
		s.checks = append(s.checks, check{name: name, fn: fn})
	}
	return s
}

// Check runs all registered checks in order.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Checks: make(map[string]CheckResult, len(s.checks))}

	failed := 0
	for _, c := range s.checks {
		if err := s.run(ctx, c); err != nil {
			r.Checks[c.name] = CheckError
			r.errs = append(r.errs, fmt.Errorf("%s: %w", c.name, err))
			failed++
			continue
		}
		r.Checks[c.name] = CheckOK
	}

	switch {
	case failed == 0:
		r.Status = Healthy
	case failed == len(s.checks):
		r.Status = Unhealthy
	default:
		r.Status = Degraded
	}
	return r
}

func (s *Service) run(ctx context.Context, c check) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return c.fn(ctx)
}
