package health

import (
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
)

// Subject is a monitorable entity: a node or a mesh.
type Subject interface {
	Scope() domain.AlertScope
	// Name is the display name used in alert messages.
	Name() string
	// Settings may be nil for a node outside any mesh.
	Settings() *domain.MeshSettings
	// Offline reports a liveness failure that overrides every check.
	Offline() bool
	// ValueFor returns the value a check key reads, false when absent.
	ValueFor(key string) (domain.CheckValue, bool)
}

// Engine runs an ordered list of checks.
type Engine struct {
	checks []domain.CheckDefinition
	now    func() time.Time
}

// NewEngine creates an engine over compiled checks. A nil clock uses time.Now.
func NewEngine(checks []domain.CheckDefinition, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{checks: checks, now: now}
}

// Keys lists the value keys the engine reads, in check order.
func (e *Engine) Keys() []string {
	keys := make([]string, len(e.checks))
	for i, c := range e.checks {
		keys[i] = c.Key
	}
	return keys
}

// RunChecks evaluates every check against s. It does not mutate s.
func (e *Engine) RunChecks(s Subject) domain.CheckResults {
	env := domain.CheckEnv{Settings: s.Settings(), Now: e.now()}
	results := make(domain.CheckResults, 0, len(e.checks))
	for _, c := range e.checks {
		var passed *bool
		if v, ok := s.ValueFor(c.Key); ok {
			if p, known := c.Predicate(v, env); known {
				passed = &p
			}
		}
		results = append(results, domain.CheckResult{
			Title:    c.Title,
			Key:      c.Key,
			Passed:   passed,
			Feedback: c.Feedback.For(passed),
		})
	}
	return results
}

// Classify reduces results to one status.
func Classify(results domain.CheckResults) domain.HealthStatus {
	if len(results) == 0 {
		return domain.HealthUnknown
	}
	failed := results.NumFailed()
	passed := results.NumPassed()
	total := failed + passed
	switch {
	case total == 0:
		return domain.HealthUnknown
	case failed == 0:
		return domain.HealthOK
	case failed*2 <= total:
		return domain.HealthWarning
	case passed > 0:
		return domain.HealthError
	}
	return domain.HealthCritical
}

// Evaluation is the outcome of one pass over one subject. It is built per
// call and never reused.
type Evaluation struct {
	Subject Subject
	Results domain.CheckResults
	Status  domain.HealthStatus
	At      time.Time
}

// Evaluate runs the checks and classifies them.
func (e *Engine) Evaluate(s Subject) *Evaluation {
	results := e.RunChecks(s)
	return &Evaluation{
		Subject: s,
		Results: results,
		Status:  Classify(results),
		At:      e.now(),
	}
}
