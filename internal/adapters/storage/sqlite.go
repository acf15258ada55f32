package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SQLiteAdapter implements the node, mesh and alert repositories using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// NodeModel is the GORM model for nodes.
type NodeModel struct {
	MAC          string `gorm:"primaryKey"`
	Name         string
	MeshName     string `gorm:"index"`
	Description  string
	Hardware     string
	IP           string
	IsAP         bool
	NASName      string
	Status       string
	HealthStatus string
	Reachable    *bool
	RebootFlag   bool
	LastPing     *time.Time
	LastContact  *time.Time
	AdoptedAt    *time.Time
	Latitude     *float64
	Longitude    *float64
	Created      time.Time
}

// MeshModel is the GORM model for meshes.
type MeshModel struct {
	Name         string `gorm:"primaryKey"`
	Location     string
	Latitude     float64
	Longitude    float64
	HealthStatus string
	Created      time.Time
	Settings     MeshSettingsModel `gorm:"foreignKey:MeshName;references:Name;constraint:OnDelete:CASCADE"`
}

// MeshSettingsModel stores one settings row per mesh. Durations are seconds.
type MeshSettingsModel struct {
	MeshName             string `gorm:"primaryKey"`
	AlertsEnabled        bool
	CheckRTT             *float64
	CheckCPU             *float64
	CheckMem             *float64
	CheckActive          *int64
	CheckPing            *int64
	CheckDailyDataUsage  *float64
	CheckHourlyDataUsage *float64
	CheckDailyUptime     *float64
	CheckHourlyUptime    *float64
}

// AlertModel is the GORM model for alerts.
type AlertModel struct {
	ID       string `gorm:"primaryKey"`
	Level    int    `gorm:"index"`
	Status   int    `gorm:"index"`
	Title    string
	Text     string
	NodeMAC  string `gorm:"index"`
	NodeName string
	MeshName string    `gorm:"index"`
	Created  time.Time `gorm:"index"`
	Modified time.Time
}

// NewSQLiteAdapter initializes the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteAdapter{db: db}, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&NodeModel{}, &MeshModel{}, &MeshSettingsModel{}, &AlertModel{}); err != nil {
		return err
	}

	// Unresolved lookups per scope run on every alert evaluation
	db.Exec("CREATE INDEX IF NOT EXISTS idx_alerts_scope_status ON alert_models(node_mac, mesh_name, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_nodes_ip ON node_models(ip)")
	return nil
}

// GetNode retrieves a node by MAC.
func (a *SQLiteAdapter) GetNode(ctx context.Context, mac string) (*domain.Node, error) {
	var model NodeModel
	if err := a.db.WithContext(ctx).First(&model, "mac = ?", domain.NormalizeMAC(mac)).Error; err != nil {
		return nil, mapErr(err)
	}
	node := nodeToDomain(model)
	return &node, nil
}

// ListNodes retrieves all nodes.
func (a *SQLiteAdapter) ListNodes(ctx context.Context) ([]domain.Node, error) {
	return a.findNodes(a.db.WithContext(ctx).Order("mac"))
}

// ListNodesWithIP retrieves the nodes that can be pinged.
func (a *SQLiteAdapter) ListNodesWithIP(ctx context.Context) ([]domain.Node, error) {
	return a.findNodes(a.db.WithContext(ctx).Where("ip IS NOT NULL AND ip != ''").Order("mac"))
}

// NodesInMesh retrieves the nodes of a mesh.
func (a *SQLiteAdapter) NodesInMesh(ctx context.Context, meshName string) ([]domain.Node, error) {
	return a.findNodes(a.db.WithContext(ctx).Where("mesh_name = ?", meshName).Order("mac"))
}

func (a *SQLiteAdapter) findNodes(query *gorm.DB) ([]domain.Node, error) {
	var models []NodeModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	nodes := make([]domain.Node, len(models))
	for i, m := range models {
		nodes[i] = nodeToDomain(m)
	}
	return nodes, nil
}

// SaveNode creates or updates a node.
func (a *SQLiteAdapter) SaveNode(ctx context.Context, node domain.Node) error {
	model := nodeToModel(node)
	return a.db.WithContext(ctx).Save(&model).Error
}

// UpdateHealthStatus persists a node's health status only.
func (a *SQLiteAdapter) UpdateHealthStatus(ctx context.Context, mac string, status domain.HealthStatus) error {
	res := a.db.WithContext(ctx).Model(&NodeModel{}).
		Where("mac = ?", domain.NormalizeMAC(mac)).
		Update("health_status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordPing updates reachable and last_ping, and marks an unreachable node
// offline unless it is rebooting. Other columns keep their stored values.
func (a *SQLiteAdapter) RecordPing(ctx context.Context, mac string, reachable bool, at time.Time) (*domain.Node, error) {
	mac = domain.NormalizeMAC(mac)
	var model NodeModel
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"reachable": reachable}
		if reachable {
			updates["last_ping"] = at
		}
		res := tx.Model(&NodeModel{}).Where("mac = ?", mac).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		if !reachable {
			if err := tx.Model(&NodeModel{}).
				Where("mac = ? AND status != ?", mac, string(domain.NodeRebooting)).
				Update("status", string(domain.NodeOffline)).Error; err != nil {
				return err
			}
		}
		return tx.First(&model, "mac = ?", mac).Error
	})
	if err != nil {
		return nil, mapErr(err)
	}
	node := nodeToDomain(model)
	return &node, nil
}

// Ping checks the database connection.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// Ensure interface compliance
var (
	_ ports.NodeRepository  = (*SQLiteAdapter)(nil)
	_ ports.MeshRepository  = (*SQLiteAdapter)(nil)
	_ ports.AlertRepository = (*SQLiteAdapter)(nil)
)
