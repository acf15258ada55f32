package storage

import (
	"context"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"gorm.io/gorm"
)

// GetAlert retrieves an alert by id.
func (a *SQLiteAdapter) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	var model AlertModel
	if err := a.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	alert := alertToDomain(model)
	return &alert, nil
}

// UnresolvedAlerts returns the unresolved alerts of a scope, newest first.
// Mesh scope only matches alerts that are not attached to a node.
func (a *SQLiteAdapter) UnresolvedAlerts(ctx context.Context, scope domain.AlertScope) ([]domain.Alert, error) {
	query := a.db.WithContext(ctx).Where("status != ?", int(domain.StatusResolved))
	if scope.IsNode() {
		query = query.Where("node_mac = ?", scope.NodeMAC)
	} else {
		query = query.Where("mesh_name = ? AND node_mac = ''", scope.MeshName)
	}
	return findAlerts(query.Order("created DESC"))
}

// ApplyAlertChanges writes every change of one scope in a single transaction.
func (a *SQLiteAdapter) ApplyAlertChanges(ctx context.Context, created []domain.Alert, updated []domain.Alert) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, alert := range created {
			model := alertToModel(alert)
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		for _, alert := range updated {
			model := alertToModel(alert)
			if err := tx.Save(&model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// QueryAlerts retrieves alerts matching the filter criteria, newest first.
func (a *SQLiteAdapter) QueryAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	query := a.db.WithContext(ctx)

	if filter.NodeMAC != "" {
		query = query.Where("node_mac = ?", domain.NormalizeMAC(filter.NodeMAC))
	}
	if filter.MeshName != "" {
		query = query.Where("mesh_name = ?", filter.MeshName)
	}
	if filter.MeshOnly {
		query = query.Where("node_mac = ''")
	}
	if filter.Level != 0 {
		query = query.Where("level = ?", int(filter.Level))
	}
	if filter.Status != 0 {
		query = query.Where("status = ?", int(filter.Status))
	}
	if filter.Unresolved {
		query = query.Where("status != ?", int(domain.StatusResolved))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	return findAlerts(query.Order("created DESC"))
}

func findAlerts(query *gorm.DB) ([]domain.Alert, error) {
	var models []AlertModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	alerts := make([]domain.Alert, len(models))
	for i, m := range models {
		alerts[i] = alertToDomain(m)
	}
	return alerts, nil
}
