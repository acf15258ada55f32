package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"github.com/lcalzada-xor/meshmon/internal/core/services/health"
	"github.com/lcalzada-xor/meshmon/internal/telemetry"
)

// AlertGenerator evaluates a subject and reconciles its alerts.
type AlertGenerator interface {
	GenerateAlert(ctx context.Context, s health.Subject) (*domain.Alert, error)
}

// Monitor runs the periodic liveness and alert sweeps and ingests node
// reports.
type Monitor struct {
	nodes    ports.NodeRepository
	meshes   ports.MeshRepository
	metrics  *MetricsService
	resolver *health.Resolver
	alerts   AlertGenerator
	pinger   ports.Pinger

	nodeKeys []string
	meshKeys []string
	defaults domain.MeshSettings
	now      func() time.Time
	logger   *slog.Logger
}

// NewMonitor creates a monitor. nodeKeys and meshKeys are the value keys the
// configured checks read, see health.Engine.Keys.
func NewMonitor(
	nodes ports.NodeRepository,
	meshes ports.MeshRepository,
	metrics *MetricsService,
	resolver *health.Resolver,
	alerts AlertGenerator,
	nodeKeys, meshKeys []string,
) *Monitor {
	return &Monitor{
		nodes:    nodes,
		meshes:   meshes,
		metrics:  metrics,
		resolver: resolver,
		alerts:   alerts,
		nodeKeys: nodeKeys,
		meshKeys: meshKeys,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// SetPinger injects the liveness prober used by PingSweep.
func (m *Monitor) SetPinger(p ports.Pinger) {
	m.pinger = p
}

// SetLogger replaces the default logger.
func (m *Monitor) SetLogger(l *slog.Logger) {
	m.logger = l
}

// SetMeshDefaults sets the settings new meshes are seeded with.
func (m *Monitor) SetMeshDefaults(s domain.MeshSettings) {
	m.defaults = s
}

// SetClock overrides the time source.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
	m.metrics.now = now
}

// RegisterMesh stores a mesh, seeding its settings from the defaults.
func (m *Monitor) RegisterMesh(ctx context.Context, mesh domain.Mesh) error {
	if mesh.Created.IsZero() {
		mesh.Created = m.now().UTC()
	}
	return m.meshes.CreateMesh(ctx, mesh, m.defaults)
}

// ReceiveReport records a report sent by a node through either upstream.
// Unknown MACs are registered as nodes without a mesh.
func (m *Monitor) ReceiveReport(ctx context.Context, mac string, report domain.Report) (*domain.Node, error) {
	if err := domain.ValidateReport(mac, report); err != nil {
		return nil, err
	}
	node, err := m.nodes.GetNode(ctx, mac)
	if errors.Is(err, domain.ErrNotFound) {
		fresh := domain.NewNode(mac, domain.NormalizeMAC(mac), "")
		node = &fresh
		m.logger.Info("Registering unknown node", "mac", node.MAC)
	} else if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	node.LastContact = &now
	node.Status = domain.NodeOnline
	node.IP = report.IP
	node.IsAP = report.IsAP
	if err := m.nodes.SaveNode(ctx, *node); err != nil {
		return nil, fmt.Errorf("save node %s: %w", node.MAC, err)
	}

	if report.Mem != nil {
		if _, err := m.metrics.Record(ctx, domain.KindResources, node.MAC, now, map[string]*float64{
			domain.FieldMemory: report.Mem,
		}); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// PingSweep pings every node with an IP, records uptime and RTT, and
// regenerates its alerts. Per-node failures are logged and skipped.
func (m *Monitor) PingSweep(ctx context.Context) error {
	if m.pinger == nil {
		return errors.New("no pinger configured")
	}
	ctx, span := otel.Tracer("monitoring-service").Start(ctx, "PingSweep")
	defer span.End()

	nodes, err := m.nodes.ListNodesWithIP(ctx)
	if err != nil {
		return fmt.Errorf("list pingable nodes: %w", err)
	}
	span.SetAttributes(attribute.Int("ping.nodes", len(nodes)))

	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.pingNode(ctx, node); err != nil {
			m.logger.Error("Ping failed", "mac", node.MAC, "ip", node.IP, "error", err)
		}
	}
	return nil
}

func (m *Monitor) pingNode(ctx context.Context, node domain.Node) error {
	result, err := m.pinger.Ping(ctx, node.IP)
	if err != nil {
		m.logger.Debug("Ping error, treating node as unreachable", "ip", node.IP, "error", err)
		result = ports.PingResult{Reachable: false, Loss: 100}
	}

	now := m.now().UTC()
	reachable := result.Reachable
	if reachable {
		telemetry.Pings.WithLabelValues("reachable").Inc()
	} else {
		telemetry.Pings.WithLabelValues("unreachable").Inc()
	}

	ratio := 0.0
	if reachable {
		ratio = 1
	}
	if _, err := m.metrics.Record(ctx, domain.KindUptime, node.MAC, now, map[string]*float64{
		domain.FieldReachable: domain.Float(ratio),
		domain.FieldLoss:      domain.Float(float64(result.Loss)),
	}); err != nil {
		return err
	}
	if result.RTTAvg != nil {
		if _, err := m.metrics.Record(ctx, domain.KindRTT, node.MAC, now, map[string]*float64{
			domain.FieldRTTMin: result.RTTMin,
			domain.FieldRTTAvg: result.RTTAvg,
			domain.FieldRTTMax: result.RTTMax,
		}); err != nil {
			return err
		}
	}

	// The sweep snapshot may be stale by now: a report can arrive while the
	// node is pinged, so only the ping columns are written.
	stored, err := m.nodes.RecordPing(ctx, node.MAC, reachable, now)
	if err != nil {
		return fmt.Errorf("save ping of %s: %w", node.MAC, err)
	}
	m.logger.Info("PING", "ip", node.IP, "reachable", reachable)

	return m.generateNodeAlert(ctx, *stored)
}

// AlertSweep regenerates the alerts of one node, or of every node and mesh
// when mac is empty.
func (m *Monitor) AlertSweep(ctx context.Context, mac string) error {
	ctx, span := otel.Tracer("monitoring-service").Start(ctx, "AlertSweep")
	defer span.End()

	if mac != "" {
		node, err := m.nodes.GetNode(ctx, mac)
		if err != nil {
			return fmt.Errorf("load node %s: %w", mac, err)
		}
		return m.generateNodeAlert(ctx, *node)
	}

	nodes, err := m.nodes.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	var errs []error
	for _, node := range nodes {
		if err := m.generateNodeAlert(ctx, node); err != nil {
			m.logger.Error("Alert generation failed", "scope", node.Scope().Key(), "error", err)
			errs = append(errs, err)
		}
	}

	meshes, err := m.meshes.ListMeshes(ctx)
	if err != nil {
		return fmt.Errorf("list meshes: %w", err)
	}
	for _, mesh := range meshes {
		subject, err := m.resolver.MeshSubject(ctx, mesh, m.meshKeys)
		if err == nil {
			_, err = m.alerts.GenerateAlert(ctx, subject)
		}
		if err != nil {
			m.logger.Error("Alert generation failed", "scope", domain.MeshScope(mesh.Name).Key(), "error", err)
			errs = append(errs, err)
		}
	}
	span.SetAttributes(attribute.Int("alert.nodes", len(nodes)), attribute.Int("alert.meshes", len(meshes)))
	return errors.Join(errs...)
}

func (m *Monitor) generateNodeAlert(ctx context.Context, node domain.Node) error {
	subject, err := m.resolver.NodeSubject(ctx, node, m.nodeKeys)
	if err != nil {
		return err
	}
	_, err = m.alerts.GenerateAlert(ctx, subject)
	return err
}
