package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
)

// MetricsService is the entry point collectors record samples through.
type MetricsService struct {
	store ports.MetricStore
	nodes  ports.NodeRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewMetricsService creates a metrics service.
func NewMetricsService(store ports.MetricStore, nodes ports.NodeRepository) *MetricsService {
	return &MetricsService{store: store, nodes: nodes, now: time.Now, logger: slog.Default()}
}

// SetLogger replaces the default logger.
func (s *MetricsService) SetLogger(l *slog.Logger) {
	s.logger = l
}

// Record stores a raw sample. A zero created time means now.
func (s *MetricsService) Record(ctx context.Context, kind domain.MetricKind, deviceID string, created time.Time, fields map[string]*float64) (*domain.MetricRecord, error) {
	if created.IsZero() {
		created = s.now()
	}
	rec, err := domain.NewMetricRecord(kind, domain.NormalizeMAC(deviceID), created.UTC(), fields)
	if err != nil {
		return nil, err
	}
	id, err := s.store.Record(ctx, *rec)
	if err != nil {
		return nil, fmt.Errorf("record %s for %s: %w", kind, deviceID, err)
	}
	rec.ID = id
	return rec, nil
}

// MetricFilter narrows a metric listing. Empty fields do not filter.
type MetricFilter struct {
	Kind        domain.MetricKind
	Device      string
	Mesh        string
	MinTime     time.Time
	Granularity string
}

// Query lists records of one kind. An unknown granularity name is ignored
// rather than failing the listing.
func (s *MetricsService) Query(ctx context.Context, f MetricFilter) ([]domain.MetricRecord, error) {
	if !f.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMetricKind, f.Kind)
	}
	q := domain.MetricQuery{Kind: f.Kind, From: f.MinTime}

	if f.Granularity != "" {
		var err error
		q, err = q.WithGranularityName(f.Granularity)
		if errors.Is(err, domain.ErrInvalidGranularityKey) {
			s.logger.Debug("Ignoring granularity filter", "granularity", f.Granularity)
		}
	}

	if f.Mesh != "" {
		nodes, err := s.nodes.NodesInMesh(ctx, f.Mesh)
		if err != nil {
			return nil, fmt.Errorf("list nodes of mesh %s: %w", f.Mesh, err)
		}
		if len(nodes) == 0 {
			return nil, nil
		}
		for _, n := range nodes {
			if f.Device == "" || n.MAC == domain.NormalizeMAC(f.Device) {
				q.DeviceIDs = append(q.DeviceIDs, n.MAC)
			}
		}
		if len(q.DeviceIDs) == 0 {
			return nil, nil
		}
	} else if f.Device != "" {
		q.DeviceIDs = []string{domain.NormalizeMAC(f.Device)}
	}

	return s.store.Query(ctx, q)
}
