package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
)

// MetricReader exposes read access to the metric store.
type MetricReader interface {
	// Query returns records matching q ordered by created ascending.
	Query(ctx context.Context, q domain.MetricQuery) ([]domain.MetricRecord, error)

	// Latest returns the most recent record of a device, at any granularity.
	// Records missing any of requiredFields are skipped. Returns
	// domain.ErrNotFound when nothing matches.
	Latest(ctx context.Context, kind domain.MetricKind, deviceID string, requiredFields ...string) (*domain.MetricRecord, error)
}

// MetricStore is the append-only time series store fed by collectors and
// rewritten only by the aggregator.
type MetricStore interface {
	MetricReader

	// Record appends a raw record and returns its id.
	Record(ctx context.Context, rec domain.MetricRecord) (int64, error)

	// Partition returns every record of one (kind, granularity) partition
	// ordered by device then created.
	Partition(ctx context.Context, kind domain.MetricKind, g domain.Granularity) ([]domain.MetricRecord, error)

	// FindBucketRecord returns the record stored for a device at the given
	// granularity and exact created time, or domain.ErrNotFound.
	FindBucketRecord(ctx context.Context, kind domain.MetricKind, deviceID string, g domain.Granularity, created time.Time) (*domain.MetricRecord, error)

	// CommitBucket atomically deletes the merged source records (and the
	// replaced aggregate, if any) and inserts the merged record. It fails with
	// domain.ErrAggregationConsistency if any of those rows vanished.
	CommitBucket(ctx context.Context, commit BucketCommit) error

	Close() error
}

// BucketCommit is the unit of work of one aggregated bucket.
type BucketCommit struct {
	Merged    domain.MetricRecord
	SourceIDs []int64
	// ReplaceID is the id of an aggregate already stored for this bucket, 0 if none.
	ReplaceID int64
}

// NodeRepository persists nodes.
type NodeRepository interface {
	GetNode(ctx context.Context, mac string) (*domain.Node, error)
	ListNodes(ctx context.Context) ([]domain.Node, error)
	ListNodesWithIP(ctx context.Context) ([]domain.Node, error)
	NodesInMesh(ctx context.Context, meshName string) ([]domain.Node, error)
	SaveNode(ctx context.Context, node domain.Node) error
	UpdateHealthStatus(ctx context.Context, mac string, status domain.HealthStatus) error
	// RecordPing stores a ping outcome without touching fields written by
	// report ingestion, and returns the node as stored afterwards.
	RecordPing(ctx context.Context, mac string, reachable bool, at time.Time) (*domain.Node, error)
}

// MeshRepository persists meshes and their settings.
type MeshRepository interface {
	GetMesh(ctx context.Context, name string) (*domain.Mesh, error)
	ListMeshes(ctx context.Context) ([]domain.Mesh, error)
	// CreateMesh stores a mesh and seeds its settings with defaults.
	CreateMesh(ctx context.Context, mesh domain.Mesh, defaults domain.MeshSettings) error
	SaveSettings(ctx context.Context, meshName string, settings domain.MeshSettings) error
	UpdateMeshHealthStatus(ctx context.Context, name string, status domain.HealthStatus) error
}

// AlertRepository persists alerts.
type AlertRepository interface {
	GetAlert(ctx context.Context, id string) (*domain.Alert, error)
	// UnresolvedAlerts returns the unresolved alerts of a scope, newest first.
	UnresolvedAlerts(ctx context.Context, scope domain.AlertScope) ([]domain.Alert, error)
	// ApplyAlertChanges creates and updates alerts of one scope in one transaction.
	ApplyAlertChanges(ctx context.Context, created []domain.Alert, updated []domain.Alert) error
	QueryAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error)
}
