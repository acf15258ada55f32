package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
)

// Resolver loads the readings a subject's checks need from the stores.
type Resolver struct {
	metrics ports.MetricReader
	nodes   ports.NodeRepository
	meshes  ports.MeshRepository
	now     func() time.Time
}

// NewResolver creates a resolver. A nil clock uses time.Now.
func NewResolver(metrics ports.MetricReader, nodes ports.NodeRepository, meshes ports.MeshRepository, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{metrics: metrics, nodes: nodes, meshes: meshes, now: now}
}

// latestField maps metric-backed node keys to their source series.
var latestField = map[string]struct {
	kind  domain.MetricKind
	field string
}{
	KeyCPU:           {domain.KindResources, domain.FieldCPU},
	KeyMem:           {domain.KindResources, domain.FieldMemory},
	KeyRTT:           {domain.KindRTT, domain.FieldRTTAvg},
	KeyDownloadSpeed: {domain.KindDataRate, domain.FieldRxRate},
	KeyUploadSpeed:   {domain.KindDataRate, domain.FieldTxRate},
}

// NodeSubject builds the subject of a node for the given check keys.
func (r *Resolver) NodeSubject(ctx context.Context, node domain.Node, keys []string) (*NodeSubject, error) {
	subject := &NodeSubject{Node: node, Readings: make(map[string]domain.CheckValue)}

	if node.MeshName != "" {
		mesh, err := r.meshes.GetMesh(ctx, node.MeshName)
		switch {
		case err == nil:
			subject.Mesh = &mesh.Settings
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load mesh %s: %w", node.MeshName, err)
		}
	}

	for _, key := range keys {
		src, ok := latestField[key]
		if !ok {
			continue
		}
		rec, err := r.metrics.Latest(ctx, src.kind, node.MAC, src.field)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s of %s: %w", key, node.MAC, err)
		}
		v, _ := rec.Value(src.field)
		subject.Readings[key] = domain.NumberValue(v)
	}
	return subject, nil
}

// MeshSubject builds the subject of a mesh for the given check keys.
func (r *Resolver) MeshSubject(ctx context.Context, mesh domain.Mesh, keys []string) (*MeshSubject, error) {
	subject := &MeshSubject{Mesh: mesh, Readings: make(map[string]domain.CheckValue)}
	now := r.now()

	for _, key := range keys {
		var (
			g      domain.Granularity
			uptime bool
		)
		switch key {
		case KeyDailyDataUsage:
			g = domain.Daily
		case KeyHourlyDataUsage:
			g = domain.Hourly
		case KeyDailyUptime:
			g, uptime = domain.Daily, true
		case KeyHourlyUptime:
			g, uptime = domain.Hourly, true
		default:
			continue
		}

		t0, t1 := g.Bucket(now)
		if !uptime {
			usage, err := r.MeshDataUsage(ctx, mesh.Name, t0, t1)
			if err != nil {
				return nil, err
			}
			subject.Readings[key] = domain.NumberValue(usage)
			continue
		}

		ratio, ok, err := r.MeshUptime(ctx, mesh.Name, t0, t1)
		if err != nil {
			return nil, err
		}
		if ok {
			subject.Readings[key] = domain.NumberValue(ratio)
		}
	}
	return subject, nil
}

func (r *Resolver) meshDevices(ctx context.Context, meshName string) ([]string, error) {
	nodes, err := r.nodes.NodesInMesh(ctx, meshName)
	if err != nil {
		return nil, fmt.Errorf("list nodes of mesh %s: %w", meshName, err)
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.MAC
	}
	return ids, nil
}

// MeshDataUsage sums tx and rx bytes of every node of a mesh over records
// created in [t0, t1), at any granularity.
func (r *Resolver) MeshDataUsage(ctx context.Context, meshName string, t0, t1 time.Time) (float64, error) {
	devices, err := r.meshDevices(ctx, meshName)
	if err != nil || len(devices) == 0 {
		return 0, err
	}
	records, err := r.metrics.Query(ctx, domain.MetricQuery{
		Kind:      domain.KindDataUsage,
		DeviceIDs: devices,
		From:      t0,
		To:        t1,
	})
	if err != nil {
		return 0, fmt.Errorf("query data usage of mesh %s: %w", meshName, err)
	}

	var total float64
	for _, rec := range records {
		if tx, ok := rec.Value(domain.FieldTxBytes); ok {
			total += tx
		}
		if rx, ok := rec.Value(domain.FieldRxBytes); ok {
			total += rx
		}
	}
	return total, nil
}

// MeshDailyDataUsage is the usage of the day containing now.
func (r *Resolver) MeshDailyDataUsage(ctx context.Context, meshName string, now time.Time) (float64, error) {
	t0, t1 := domain.Daily.Bucket(now)
	return r.MeshDataUsage(ctx, meshName, t0, t1)
}

// MeshHourlyDataUsage is the usage of the hour containing now.
func (r *Resolver) MeshHourlyDataUsage(ctx context.Context, meshName string, now time.Time) (float64, error) {
	t0, t1 := domain.Hourly.Bucket(now)
	return r.MeshDataUsage(ctx, meshName, t0, t1)
}

// MeshUptime is the sample-weighted reachable ratio of a mesh's nodes in
// [t0, t1), in percent. ok is false without samples.
func (r *Resolver) MeshUptime(ctx context.Context, meshName string, t0, t1 time.Time) (float64, bool, error) {
	devices, err := r.meshDevices(ctx, meshName)
	if err != nil || len(devices) == 0 {
		return 0, false, err
	}
	records, err := r.metrics.Query(ctx, domain.MetricQuery{
		Kind:      domain.KindUptime,
		DeviceIDs: devices,
		From:      t0,
		To:        t1,
	})
	if err != nil {
		return 0, false, fmt.Errorf("query uptime of mesh %s: %w", meshName, err)
	}
	merged := domain.MergeRecords(domain.KindUptime, meshName, domain.Raw, t0, records)
	ratio, ok := merged.Value(domain.FieldReachable)
	if !ok {
		return 0, false, nil
	}
	return ratio * 100, true, nil
}
