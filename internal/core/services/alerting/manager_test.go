package alerting

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/meshmon/internal/adapters/lock"
	"github.com/lcalzada-xor/meshmon/internal/adapters/storage"
	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"github.com/lcalzada-xor/meshmon/internal/core/services/health"
)

var now = time.Date(2024, 8, 22, 16, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ports.AlertEvent
}

func (r *recordingNotifier) Notify(ctx context.Context, events []ports.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

type fixture struct {
	db       *storage.SQLiteAdapter
	manager  *Manager
	notifier *recordingNotifier
	settings domain.MeshSettings
}

func setup(t *testing.T) *fixture {
	db, err := storage.NewSQLiteAdapter(filepath.Join(t.TempDir(), "meshmon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return now }
	cfg := health.DefaultCheckConfig()
	nodeChecks, err := health.Compile(cfg.Node)
	require.NoError(t, err)
	meshChecks, err := health.Compile(cfg.Mesh)
	require.NoError(t, err)

	settings := domain.MeshSettings{AlertsEnabled: true, CheckCPU: domain.Float(80), CheckDailyDataUsage: domain.Float(650)}
	require.NoError(t, db.CreateMesh(context.Background(), domain.Mesh{Name: "meshA", Created: now}, settings))

	notifier := &recordingNotifier{}
	manager := NewManager(db, db, db, lock.NewMemoryLocker(),
		health.NewEngine(nodeChecks, clock), health.NewEngine(meshChecks, clock))
	manager.SetClock(clock)
	manager.SetNotifier(notifier)

	return &fixture{db: db, manager: manager, notifier: notifier, settings: settings}
}

// healthyNode is online, pinged and contacted just now.
func (f *fixture) healthyNode(t *testing.T) domain.Node {
	reachable := true
	ts := now
	node := domain.NewNode("aa:bb:cc:dd:ee:01", "nodeA", "meshA")
	node.Status = domain.NodeOnline
	node.Reachable = &reachable
	node.LastPing = &ts
	node.LastContact = &ts
	require.NoError(t, f.db.SaveNode(context.Background(), node))
	return node
}

func (f *fixture) subject(node domain.Node, cpu, mem, rtt float64) *health.NodeSubject {
	settings := f.settings
	return &health.NodeSubject{
		Node: node,
		Mesh: &settings,
		Readings: map[string]domain.CheckValue{
			health.KeyCPU: domain.NumberValue(cpu),
			health.KeyMem: domain.NumberValue(mem),
			health.KeyRTT: domain.NumberValue(rtt),
		},
	}
}

func (f *fixture) open(t *testing.T, scope domain.AlertScope) []domain.Alert {
	alerts, err := f.db.UnresolvedAlerts(context.Background(), scope)
	require.NoError(t, err)
	return alerts
}

func TestGenerateAlert_HighCPU(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	node := f.healthyNode(t)

	alert, err := f.manager.GenerateAlert(ctx, f.subject(node, 90, 10, 10))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, domain.StatusNew, alert.Status)
	assert.Equal(t, domain.LevelError, alert.Level)
	assert.Equal(t, domain.TitleHealthBad, alert.Title)
	assert.Contains(t, alert.Text, "The following health checks failed: cpu")
	assert.Equal(t, "nodeA", alert.NodeName)

	stored, err := f.db.GetNode(ctx, node.MAC)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthWarning, stored.HealthStatus)

	t.Run("same state is a no-op", func(t *testing.T) {
		again, err := f.manager.GenerateAlert(ctx, f.subject(node, 90, 10, 10))
		require.NoError(t, err)
		assert.Nil(t, again)
		assert.Len(t, f.open(t, node.Scope()), 1)
	})

	t.Run("recovery resolves", func(t *testing.T) {
		resolved, err := f.manager.GenerateAlert(ctx, f.subject(node, 50, 10, 10))
		require.NoError(t, err)
		assert.Nil(t, resolved)
		assert.Empty(t, f.open(t, node.Scope()))

		stored, err := f.db.GetAlert(ctx, alert.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusResolved, stored.Status)

		n, err := f.db.GetNode(ctx, node.MAC)
		require.NoError(t, err)
		assert.Equal(t, domain.HealthOK, n.HealthStatus)
	})

	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, domain.StatusNew, f.notifier.events[0].Alert.Status)
	assert.Equal(t, domain.StatusResolved, f.notifier.events[1].Alert.Status)
	assert.Contains(t, f.notifier.events[0].Message, "Generated by node 'nodeA'")
}

func TestGenerateAlert_OfflineUpgrades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	node := f.healthyNode(t)

	first, err := f.manager.GenerateAlert(ctx, f.subject(node, 90, 10, 10))
	require.NoError(t, err)
	require.NotNil(t, first)

	node.Status = domain.NodeOffline
	upgraded, err := f.manager.GenerateAlert(ctx, f.subject(node, 90, 10, 10))
	require.NoError(t, err)
	require.NotNil(t, upgraded)
	assert.Equal(t, first.ID, upgraded.ID)
	assert.Equal(t, domain.StatusUpgraded, upgraded.Status)
	assert.Equal(t, domain.LevelCritical, upgraded.Level)
	assert.Equal(t, domain.TitleOffline, upgraded.Title)
	assert.Regexp(t, `^_2024-08-22 16:00:00_ `+domain.TextOffline+`\n`, upgraded.Text, "newest event first")

	open := f.open(t, node.Scope())
	require.Len(t, open, 1)
	assert.Equal(t, domain.LevelCritical, open[0].Level)
}

func TestGenerateAlert_RenameOnSameLevel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	node := f.healthyNode(t)
	node.Status = domain.NodeOffline

	first, err := f.manager.GenerateAlert(ctx, f.subject(node, 10, 10, 10))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, domain.TitleOffline, first.Title)

	// Back online but every check fails.
	stale := now.Add(-time.Hour)
	unreachable := false
	node.Status = domain.NodeOnline
	node.Reachable = &unreachable
	node.LastPing = &stale
	node.LastContact = &stale

	renamed, err := f.manager.GenerateAlert(ctx, f.subject(node, 95, 95, 95))
	require.NoError(t, err)
	require.NotNil(t, renamed)
	assert.Equal(t, first.ID, renamed.ID)
	assert.Equal(t, domain.StatusRename, renamed.Status)
	assert.Equal(t, domain.LevelCritical, renamed.Level)
	assert.Equal(t, domain.TitleHealthCritical, renamed.Title)
	assert.Contains(t, renamed.Text, "Renamed Node is offline -> Node's health is critical")
}

func TestGenerateAlert_LowerCandidateResolvesWorse(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	node := f.healthyNode(t)
	node.Status = domain.NodeOffline

	critical, err := f.manager.GenerateAlert(ctx, f.subject(node, 10, 10, 10))
	require.NoError(t, err)
	require.NotNil(t, critical)

	node.Status = domain.NodeOnline
	result, err := f.manager.GenerateAlert(ctx, f.subject(node, 90, 10, 10))
	require.NoError(t, err)
	assert.Nil(t, result)

	stored, err := f.db.GetAlert(ctx, critical.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, stored.Status)
	assert.Empty(t, f.open(t, node.Scope()))

	t.Run("next evaluation opens the lower alert", func(t *testing.T) {
		alert, err := f.manager.GenerateAlert(ctx, f.subject(node, 90, 10, 10))
		require.NoError(t, err)
		require.NotNil(t, alert)
		assert.Equal(t, domain.LevelError, alert.Level)
		assert.NotEqual(t, critical.ID, alert.ID)
	})
}

func TestGenerateAlert_NewNodeIsUnknown(t *testing.T) {
	f := setup(t)
	node := domain.NewNode("aa:bb:cc:dd:ee:02", "fresh", "meshA")
	require.NoError(t, f.db.SaveNode(context.Background(), node))

	alert, err := f.manager.GenerateAlert(context.Background(), &health.NodeSubject{Node: node})
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Empty(t, f.notifier.events)

	stored, err := f.db.GetNode(context.Background(), node.MAC)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthUnknown, stored.HealthStatus)
}

func TestGenerateAlert_NotificationsDisabled(t *testing.T) {
	f := setup(t)
	f.settings.AlertsEnabled = false
	node := f.healthyNode(t)

	alert, err := f.manager.GenerateAlert(context.Background(), f.subject(node, 90, 10, 10))
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Len(t, f.open(t, node.Scope()), 1)
	assert.Empty(t, f.notifier.events)
}

func TestGenerateAlert_Mesh(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	mesh, err := f.db.GetMesh(ctx, "meshA")
	require.NoError(t, err)

	subject := &health.MeshSubject{
		Mesh:     *mesh,
		Readings: map[string]domain.CheckValue{health.KeyDailyDataUsage: domain.NumberValue(2810)},
	}
	alert, err := f.manager.GenerateAlert(ctx, subject)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Empty(t, alert.NodeMAC)
	assert.Equal(t, "meshA", alert.MeshName)
	assert.Equal(t, domain.LevelCritical, alert.Level)
	assert.NotContains(t, alert.Message(), "Generated by node")

	stored, err := f.db.GetMesh(ctx, "meshA")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthCritical, stored.HealthStatus)
}

type scopelessSubject struct{}

func (scopelessSubject) Scope() domain.AlertScope                  { return domain.AlertScope{} }
func (scopelessSubject) Name() string                              { return "" }
func (scopelessSubject) Settings() *domain.MeshSettings            { return nil }
func (scopelessSubject) Offline() bool                             { return true }
func (scopelessSubject) ValueFor(string) (domain.CheckValue, bool) { return domain.CheckValue{}, false }

func TestGenerateAlert_UnresolvableScope(t *testing.T) {
	f := setup(t)
	alert, err := f.manager.GenerateAlert(context.Background(), scopelessSubject{})
	require.NoError(t, err)
	assert.Nil(t, alert)
}
