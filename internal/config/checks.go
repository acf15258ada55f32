package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/services/health"
)

// checksFile is the layout of the checks YAML file:
//
//	mesh_defaults:
//	  alerts_enabled: true
//	  check_cpu: 80
//	  check_active: 5m
//	checks:
//	  node:
//	    - {title: CPU Usage, key: cpu, op: lt, setting: check_cpu, threshold: 80}
//	  mesh: []
//
// A missing checks section, or a missing entity list, keeps the built-in list.
type checksFile struct {
	MeshDefaults *domain.MeshSettings `yaml:"mesh_defaults"`
	Checks       struct {
		Node []domain.CheckSpec `yaml:"node"`
		Mesh []domain.CheckSpec `yaml:"mesh"`
	} `yaml:"checks"`
}

// DefaultMeshSettings are the settings a new mesh starts with when no file
// overrides them: alerts on, thresholds left to the check defaults.
func DefaultMeshSettings() domain.MeshSettings {
	return domain.MeshSettings{AlertsEnabled: true}
}

// LoadChecks reads the check lists and mesh defaults from path. An empty path
// yields the built-in configuration. Every list is compiled once to surface
// mistakes at startup.
func LoadChecks(path string) (domain.CheckConfig, domain.MeshSettings, error) {
	checks := health.DefaultCheckConfig()
	defaults := DefaultMeshSettings()
	if path == "" {
		return checks, defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return checks, defaults, fmt.Errorf("read checks file: %w", err)
	}

	var file checksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return checks, defaults, fmt.Errorf("parse checks file %s: %w", path, err)
	}

	if file.MeshDefaults != nil {
		defaults = *file.MeshDefaults
	}
	if file.Checks.Node != nil {
		checks.Node = file.Checks.Node
	}
	if file.Checks.Mesh != nil {
		checks.Mesh = file.Checks.Mesh
	}

	if _, err := health.Compile(checks.Node); err != nil {
		return checks, defaults, fmt.Errorf("node checks: %w", err)
	}
	if _, err := health.Compile(checks.Mesh); err != nil {
		return checks, defaults, fmt.Errorf("mesh checks: %w", err)
	}
	return checks, defaults, nil
}
