package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/services/health"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, time.Minute, cfg.PingInterval)
	assert.Equal(t, 3, cfg.PingCount)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, time.Minute, cfg.LockTTL)
	assert.Equal(t, health.DefaultCheckConfig(), cfg.Checks)
	assert.True(t, cfg.MeshDefaults.AlertsEnabled)
}

func TestParse_EnvAndFlags(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MESHMON_ADDR", ":7000")
	t.Setenv("MESHMON_PING_INTERVAL", "30s")
	t.Setenv("MESHMON_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MESHMON_TRACING", "true")
	t.Setenv("MESHMON_LOCK_TTL", "90s")

	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-addr", ":8000", "-ping-count", "5"})
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Addr, "flags override env")
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Equal(t, 5, cfg.PingCount)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, 90*time.Second, cfg.LockTTL)

	_, err = parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-ping-count", "0"})
	assert.Error(t, err)

	_, err = parse(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-lock-ttl", "10ms"})
	assert.Error(t, err)
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "checks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadChecks(t *testing.T) {
	t.Run("overrides", func(t *testing.T) {
		path := writeFile(t, `
mesh_defaults:
  alerts_enabled: false
  check_cpu: 65
  check_active: 10m
checks:
  node:
    - title: CPU Usage
      key: cpu
      op: lt
      setting: check_cpu
      threshold: 90
      feedback:
        fail: CPU usage is high
`)
		checks, defaults, err := LoadChecks(path)
		require.NoError(t, err)

		assert.False(t, defaults.AlertsEnabled)
		require.NotNil(t, defaults.CheckCPU)
		assert.Equal(t, 65.0, *defaults.CheckCPU)
		require.NotNil(t, defaults.CheckActive)
		assert.Equal(t, 10*time.Minute, *defaults.CheckActive)

		require.Len(t, checks.Node, 1)
		assert.Equal(t, domain.OpLessThan, checks.Node[0].Op)
		assert.Equal(t, 90.0, *checks.Node[0].Threshold)
		assert.Equal(t, health.DefaultCheckConfig().Mesh, checks.Mesh, "missing lists keep the built-in ones")
	})

	t.Run("invalid check", func(t *testing.T) {
		path := writeFile(t, `
checks:
  mesh:
    - {title: Uptime, key: daily_uptime, op: between}
`)
		_, _, err := LoadChecks(path)
		assert.ErrorIs(t, err, domain.ErrInvalidCheckSpec)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadChecks(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, _, err := LoadChecks(writeFile(t, "checks: [unclosed"))
		assert.Error(t, err)
	})
}
