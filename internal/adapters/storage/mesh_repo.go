package storage

import (
	"context"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetMesh retrieves a mesh with its settings.
func (a *SQLiteAdapter) GetMesh(ctx context.Context, name string) (*domain.Mesh, error) {
	var model MeshModel
	if err := a.db.WithContext(ctx).Preload("Settings").First(&model, "name = ?", name).Error; err != nil {
		return nil, mapErr(err)
	}
	mesh := meshToDomain(model)
	return &mesh, nil
}

// ListMeshes retrieves all meshes with their settings.
func (a *SQLiteAdapter) ListMeshes(ctx context.Context) ([]domain.Mesh, error) {
	var models []MeshModel
	if err := a.db.WithContext(ctx).Preload("Settings").Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	meshes := make([]domain.Mesh, len(models))
	for i, m := range models {
		meshes[i] = meshToDomain(m)
	}
	return meshes, nil
}

// CreateMesh stores a mesh and seeds its settings row with defaults.
// An existing settings row is left untouched.
func (a *SQLiteAdapter) CreateMesh(ctx context.Context, mesh domain.Mesh, defaults domain.MeshSettings) error {
	model := meshToModel(mesh)
	settings := settingsToModel(mesh.Name, defaults)

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Settings").Save(&model).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error
	})
}

// SaveSettings replaces the settings of a mesh.
func (a *SQLiteAdapter) SaveSettings(ctx context.Context, meshName string, settings domain.MeshSettings) error {
	model := settingsToModel(meshName, settings)
	return a.db.WithContext(ctx).Save(&model).Error
}

// UpdateMeshHealthStatus persists a mesh's health status only.
func (a *SQLiteAdapter) UpdateMeshHealthStatus(ctx context.Context, name string, status domain.HealthStatus) error {
	res := a.db.WithContext(ctx).Model(&MeshModel{}).
		Where("name = ?", name).
		Update("health_status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
