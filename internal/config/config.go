package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Addr          string
	DBPath        string
	MetricsDBPath string
	ChecksPath    string
	RedisAddr     string
	LockTTL       time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
	PingInterval  time.Duration
	PingCount     int
	PingTimeout   time.Duration
	AlertInterval time.Duration
	Tracing       bool
	Debug         bool

	// Loaded from ChecksPath, built-in defaults otherwise.
	Checks       domain.CheckConfig
	MeshDefaults domain.MeshSettings
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() (*Config, error) {
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	// Defaults and Environment Variables
	dataDir := getDefaultDataDir()
	brokers := getEnv("MESHMON_KAFKA_BROKERS", "")
	cfg.Addr = getEnv("MESHMON_ADDR", ":9100")
	cfg.DBPath = getEnv("MESHMON_DB", filepath.Join(dataDir, "meshmon.db"))
	cfg.MetricsDBPath = getEnv("MESHMON_METRICS_DB", filepath.Join(dataDir, "metrics.db"))
	cfg.ChecksPath = getEnv("MESHMON_CHECKS", "")
	cfg.RedisAddr = getEnv("MESHMON_REDIS", "")
	cfg.LockTTL = getEnvDuration("MESHMON_LOCK_TTL", time.Minute)
	cfg.KafkaTopic = getEnv("MESHMON_KAFKA_TOPIC", "meshmon.alerts")
	cfg.PingInterval = getEnvDuration("MESHMON_PING_INTERVAL", time.Minute)
	cfg.PingCount = int(getEnvFloat("MESHMON_PING_COUNT", 3))
	cfg.PingTimeout = getEnvDuration("MESHMON_PING_TIMEOUT", 2*time.Second)
	cfg.AlertInterval = getEnvDuration("MESHMON_ALERT_INTERVAL", 5*time.Minute)
	cfg.Tracing = getEnvBool("MESHMON_TRACING", false)

	// Command Line Flags (Override Env)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Ops HTTP server address (metrics, health)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the monitoring SQLite database")
	fs.StringVar(&cfg.MetricsDBPath, "metrics-db", cfg.MetricsDBPath, "Path to the metrics SQLite database")
	fs.StringVar(&cfg.ChecksPath, "checks", cfg.ChecksPath, "Health checks YAML file (empty for built-in checks)")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for job locks (empty for in-process locks)")
	fs.DurationVar(&cfg.LockTTL, "lock-ttl", cfg.LockTTL, "Lease of a Redis lock, renewed while held")
	fs.StringVar(&brokers, "kafka", brokers, "Kafka brokers for alert notifications (comma separated, empty to log only)")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "Kafka topic for alert notifications")
	fs.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "Interval between ping sweeps")
	fs.IntVar(&cfg.PingCount, "ping-count", cfg.PingCount, "Echo requests per node and sweep")
	fs.DurationVar(&cfg.PingTimeout, "ping-timeout", cfg.PingTimeout, "Timeout per echo request")
	fs.DurationVar(&cfg.AlertInterval, "alert-interval", cfg.AlertInterval, "Interval between alert sweeps")
	fs.BoolVar(&cfg.Tracing, "tracing", cfg.Tracing, "Export traces to stdout")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.KafkaBrokers = splitList(brokers)

	checks, defaults, err := LoadChecks(cfg.ChecksPath)
	if err != nil {
		return nil, err
	}
	cfg.Checks = checks
	cfg.MeshDefaults = defaults

	if cfg.LockTTL < time.Second {
		return nil, fmt.Errorf("lock ttl must be at least 1s, got %s", cfg.LockTTL)
	}
	if cfg.PingCount < 1 {
		return nil, fmt.Errorf("ping count must be positive, got %d", cfg.PingCount)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var items []string
	if s == "" {
		return items
	}
	parts := strings.Split(s, ",")
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getDefaultDataDir returns ~/.meshmon, creating it if needed.
func getDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "."
	}

	dir := filepath.Join(home, ".meshmon")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .meshmon directory, using current dir: %v", err)
		return "."
	}
	return dir
}
