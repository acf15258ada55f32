package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"github.com/lcalzada-xor/meshmon/internal/core/services/health"
	"github.com/lcalzada-xor/meshmon/internal/telemetry"
)

// Manager derives alert candidates from health evaluations and reconciles
// them with the unresolved alerts of each scope.
type Manager struct {
	alerts     ports.AlertRepository
	nodes      ports.NodeRepository
	meshes     ports.MeshRepository
	locker     ports.Locker
	nodeEngine *health.Engine
	meshEngine *health.Engine

	notifier ports.AlertNotifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewManager creates an alert manager. Node and mesh subjects are evaluated
// by their own engine.
func NewManager(
	alerts ports.AlertRepository,
	nodes ports.NodeRepository,
	meshes ports.MeshRepository,
	locker ports.Locker,
	nodeEngine *health.Engine,
	meshEngine *health.Engine,
) *Manager {
	return &Manager{
		alerts:     alerts,
		nodes:      nodes,
		meshes:     meshes,
		locker:     locker,
		nodeEngine: nodeEngine,
		meshEngine: meshEngine,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// SetNotifier injects the sink alert transitions are published to.
func (m *Manager) SetNotifier(n ports.AlertNotifier) {
	m.notifier = n
}

// SetLogger replaces the default logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	m.logger = l
}

// SetClock overrides the time source used for alert timestamps.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// GenerateAlert evaluates s, persists its health status and reconciles the
// resulting candidate with the scope's open alerts. It returns the alert that
// was created or changed, nil when nothing changed.
func (m *Manager) GenerateAlert(ctx context.Context, s health.Subject) (*domain.Alert, error) {
	scope := s.Scope()
	ctx, span := otel.Tracer("alerting-service").Start(ctx, "GenerateAlert")
	defer span.End()
	span.SetAttributes(attribute.String("alert.scope", scope.Key()))

	if err := scope.Validate(); err != nil {
		m.logger.Warn("Skipping alert generation", "scope", scope.Key(), "error", err)
		return nil, nil
	}

	eval := m.engineFor(scope).Evaluate(s)
	telemetry.HealthEvaluations.WithLabelValues(entityOf(scope), string(eval.Status)).Inc()
	if err := m.persistStatus(ctx, scope, eval.Status); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist health status")
		return nil, err
	}
	span.SetAttributes(attribute.String("health.status", string(eval.Status)))

	candidate, err := m.candidate(s, eval)
	if errors.Is(err, domain.ErrScopeResolution) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	unlock, err := m.lock(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer unlock()

	notify := s.Settings() == nil || s.Settings().AlertsEnabled
	if candidate == nil {
		return nil, m.resolveAll(ctx, scope, notify)
	}
	return m.apply(ctx, candidate, notify)
}

func (m *Manager) engineFor(scope domain.AlertScope) *health.Engine {
	if scope.IsNode() {
		return m.nodeEngine
	}
	return m.meshEngine
}

func entityOf(scope domain.AlertScope) string {
	if scope.IsNode() {
		return "node"
	}
	return "mesh"
}

// persistStatus stores the fresh status. Subjects that are not stored yet are
// tolerated.
func (m *Manager) persistStatus(ctx context.Context, scope domain.AlertScope, status domain.HealthStatus) error {
	var err error
	if scope.IsNode() {
		err = m.nodes.UpdateHealthStatus(ctx, scope.NodeMAC, status)
	} else {
		err = m.meshes.UpdateMeshHealthStatus(ctx, scope.MeshName, status)
	}
	if errors.Is(err, domain.ErrNotFound) {
		m.logger.Debug("Health status not persisted, subject not stored", "scope", scope.Key())
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist health status of %s: %w", scope.Key(), err)
	}
	return nil
}

// candidate derives the alert the evaluation calls for, nil when healthy.
// An offline node is critical whatever its checks say.
func (m *Manager) candidate(s health.Subject, eval *health.Evaluation) (*domain.Alert, error) {
	scope := s.Scope()
	var nodeName string
	if scope.IsNode() {
		nodeName = s.Name()
	}
	now := m.now()

	if scope.IsNode() && s.Offline() {
		return domain.NewCandidate(scope, nodeName, domain.LevelCritical, domain.TitleOffline, domain.TextOffline, now)
	}

	text := fmt.Sprintf(domain.TextHealthChecks, strings.Join(eval.Results.FailedKeys(), ", "))
	switch eval.Status {
	case domain.HealthCritical:
		return domain.NewCandidate(scope, nodeName, domain.LevelCritical, domain.TitleHealthCritical, text, now)
	case domain.HealthError, domain.HealthWarning:
		return domain.NewCandidate(scope, nodeName, domain.LevelError, domain.TitleHealthBad, text, now)
	}
	return nil, nil
}

func (m *Manager) lock(ctx context.Context, scope domain.AlertScope) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	unlock, err := m.locker.Lock(ctx, "alert:"+scope.Key())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", scope.Key(), err)
	}
	return unlock, nil
}

// apply reconciles candidate with the newest open alert of its scope:
//
//	no open alert         -> candidate stored as NEW
//	higher level          -> latest UPGRADED
//	same level, new title -> latest RENAMED
//	otherwise             -> no change
//
// Open alerts more severe than the candidate are then resolved. All writes
// are committed together.
func (m *Manager) apply(ctx context.Context, candidate *domain.Alert, notify bool) (*domain.Alert, error) {
	scope := candidate.Scope()
	open, err := m.alerts.UnresolvedAlerts(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load open alerts of %s: %w", scope.Key(), err)
	}

	now := m.now()
	var (
		result  *domain.Alert
		created []domain.Alert
		changed = make(map[int]bool)
	)

	if len(open) == 0 {
		candidate.ID = uuid.NewString()
		created = append(created, *candidate)
		result = candidate
	} else {
		latest := &open[0]
		switch {
		case candidate.Level > latest.Level:
			if err := latest.Upgrade(candidate, now); err != nil {
				return nil, err
			}
			changed[0] = true
			result = latest
		case candidate.Level == latest.Level && candidate.Title != latest.Title:
			if err := latest.Rename(candidate, now); err != nil {
				return nil, err
			}
			changed[0] = true
			result = latest
		}
	}

	for i := range open {
		if open[i].Level > candidate.Level {
			open[i].Resolve(now)
			changed[i] = true
		}
	}

	var updated []domain.Alert
	for i := range open {
		if changed[i] {
			updated = append(updated, open[i])
		}
	}

	if err := m.commit(ctx, created, updated, notify); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	out := *result
	return &out, nil
}

// resolveAll closes every open alert of a healthy scope.
func (m *Manager) resolveAll(ctx context.Context, scope domain.AlertScope, notify bool) error {
	open, err := m.alerts.UnresolvedAlerts(ctx, scope)
	if err != nil {
		return fmt.Errorf("load open alerts of %s: %w", scope.Key(), err)
	}
	if len(open) == 0 {
		return nil
	}
	now := m.now()
	for i := range open {
		open[i].Resolve(now)
	}
	return m.commit(ctx, nil, open, notify)
}

func (m *Manager) commit(ctx context.Context, created, updated []domain.Alert, notify bool) error {
	if len(created) == 0 && len(updated) == 0 {
		return nil
	}
	if err := m.alerts.ApplyAlertChanges(ctx, created, updated); err != nil {
		return fmt.Errorf("apply alert changes: %w", err)
	}

	now := m.now()
	events := make([]ports.AlertEvent, 0, len(created)+len(updated))
	for _, a := range append(append([]domain.Alert(nil), created...), updated...) {
		telemetry.AlertTransitions.WithLabelValues(a.Status.String(), a.Level.String()).Inc()
		m.logger.Info("Alert transition",
			"id", a.ID,
			"scope", a.Scope().Key(),
			"status", a.Status.String(),
			"level", a.Level.String(),
			"title", a.Title,
		)
		events = append(events, ports.AlertEvent{Alert: a, Message: a.Message(), At: now})
	}

	if !notify || m.notifier == nil {
		return nil
	}
	// The alert state is already committed; a failed notification is not retried here.
	if err := m.notifier.Notify(ctx, events); err != nil {
		m.logger.Error("Alert notification failed", "count", len(events), "error", err)
	}
	return nil
}
