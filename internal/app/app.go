package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/adapters/lock"
	"github.com/lcalzada-xor/meshmon/internal/adapters/metricstore"
	"github.com/lcalzada-xor/meshmon/internal/adapters/notify"
	"github.com/lcalzada-xor/meshmon/internal/adapters/pinger"
	"github.com/lcalzada-xor/meshmon/internal/adapters/storage"
	webserver "github.com/lcalzada-xor/meshmon/internal/adapters/web/server"
	"github.com/lcalzada-xor/meshmon/internal/config"
	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"github.com/lcalzada-xor/meshmon/internal/core/services/aggregation"
	"github.com/lcalzada-xor/meshmon/internal/core/services/alerting"
	"github.com/lcalzada-xor/meshmon/internal/core/services/health"
	"github.com/lcalzada-xor/meshmon/internal/core/services/monitoring"
	"github.com/lcalzada-xor/meshmon/internal/telemetry"
)

// Application holds the core components of the application.
// It wires storage, services and the periodic jobs that drive them.
type Application struct {
	Config         *config.Config
	Store          *storage.SQLiteAdapter
	MetricStore    *metricstore.SQLiteRepository
	MetricsService *monitoring.MetricsService
	Monitor        *monitoring.Monitor
	Aggregator     *aggregation.Aggregator
	AlertManager   *alerting.Manager
	WebServer      *webserver.Server

	locker   ports.Locker
	notifier ports.AlertNotifier
	closers  []func() error
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
	}

	if err := app.bootstrap(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation & Infrastructure
	telemetry.InitMetrics()
	app.WebServer = webserver.NewServer(app.Config.Addr)

	if err := app.initStorage(); err != nil {
		return err
	}
	if err := app.initLocker(); err != nil {
		return err
	}
	app.initNotifier()

	// 2. Health checks
	nodeChecks, err := health.Compile(app.Config.Checks.Node)
	if err != nil {
		return fmt.Errorf("node checks: %w", err)
	}
	meshChecks, err := health.Compile(app.Config.Checks.Mesh)
	if err != nil {
		return fmt.Errorf("mesh checks: %w", err)
	}
	nodeEngine := health.NewEngine(nodeChecks, nil)
	meshEngine := health.NewEngine(meshChecks, nil)

	// 3. Domain Services
	app.AlertManager = alerting.NewManager(app.Store, app.Store, app.Store, app.locker, nodeEngine, meshEngine)
	app.AlertManager.SetNotifier(app.notifier)
	app.AlertManager.SetLogger(slog.Default().With("component", "alerting"))

	app.Aggregator = aggregation.NewAggregator(app.MetricStore, app.locker, nil, slog.Default().With("component", "aggregation"))
	app.MetricsService = monitoring.NewMetricsService(app.MetricStore, app.Store)
	app.MetricsService.SetLogger(slog.Default().With("component", "metrics"))

	resolver := health.NewResolver(app.MetricStore, app.Store, app.Store, nil)
	app.Monitor = monitoring.NewMonitor(app.Store, app.Store, app.MetricsService, resolver, app.AlertManager,
		nodeEngine.Keys(), meshEngine.Keys())
	app.Monitor.SetPinger(pinger.NewICMPPinger(app.Config.PingCount, app.Config.PingTimeout))
	app.Monitor.SetMeshDefaults(app.Config.MeshDefaults)
	app.Monitor.SetLogger(slog.Default().With("component", "monitor"))

	return nil
}

func (app *Application) initStorage() error {
	for _, path := range []string{app.Config.DBPath, app.Config.MetricsDBPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init monitoring storage: %w", err)
	}
	app.Store = store
	app.closers = append(app.closers, store.Close)
	app.WebServer.AddReadinessCheck("db", store.Ping)

	metrics, err := metricstore.NewSQLiteRepository(app.Config.MetricsDBPath)
	if err != nil {
		return fmt.Errorf("failed to init metric storage: %w", err)
	}
	app.MetricStore = metrics
	app.closers = append(app.closers, metrics.Close)
	app.WebServer.AddReadinessCheck("metrics_db", metrics.Ping)
	return nil
}

func (app *Application) initLocker() error {
	if app.Config.RedisAddr == "" {
		app.locker = lock.NewMemoryLocker()
		return nil
	}
	locker, err := lock.NewRedisLocker(app.Config.RedisAddr, os.Getenv("MESHMON_REDIS_PASSWORD"), 0, app.Config.LockTTL)
	if err != nil {
		return err
	}
	app.locker = locker
	app.closers = append(app.closers, locker.Close)
	app.WebServer.AddReadinessCheck("redis", locker.Ping)
	slog.Info("Using Redis job locks", "addr", app.Config.RedisAddr)
	return nil
}

func (app *Application) initNotifier() {
	if len(app.Config.KafkaBrokers) == 0 {
		app.notifier = notify.NewLogNotifier(slog.Default())
		return
	}
	app.notifier = notify.NewKafkaNotifier(app.Config.KafkaBrokers, app.Config.KafkaTopic)
	app.closers = append(app.closers, app.notifier.Close)
	slog.Info("Publishing alerts to Kafka", "brokers", app.Config.KafkaBrokers, "topic", app.Config.KafkaTopic)
}

// Run starts the ops server and the periodic jobs, and blocks until ctx is
// done or the server fails.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting meshmon components...")

	jobCtx, stopJobs := context.WithCancel(ctx)
	var jobs sync.WaitGroup
	schedule := func(name string, interval time.Duration, job func(context.Context) error) {
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			app.every(jobCtx, name, interval, job)
		}()
	}

	// 1. Periodic jobs
	schedule("ping-sweep", app.Config.PingInterval, app.Monitor.PingSweep)
	schedule("alert-sweep", app.Config.AlertInterval, func(ctx context.Context) error {
		return app.Monitor.AlertSweep(ctx, "")
	})
	for _, target := range []domain.Granularity{domain.Hourly, domain.Daily, domain.Monthly} {
		schedule("aggregate-"+target.String(), target.Width(), func(ctx context.Context) error {
			_, err := app.Aggregator.AggregateAll(ctx, target)
			return err
		})
	}

	// 2. Servers
	errChan := make(chan error, 1)
	go func() {
		if err := app.WebServer.Run(jobCtx); err != nil {
			errChan <- fmt.Errorf("ops server error: %w", err)
		}
	}()

	slog.Info("meshmon ready. Press Ctrl+C to terminate.")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case runErr = <-errChan:
	}

	stopJobs()
	jobs.Wait()
	if err := app.cleanup(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// every runs job immediately and then on every tick until ctx is done.
// Failures are logged; the next tick runs regardless.
func (app *Application) every(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	run := func() {
		start := time.Now()
		if err := job(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Job failed", "job", name, "error", err)
			return
		}
		slog.Debug("Job finished", "job", name, "elapsed", time.Since(start))
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (app *Application) cleanup() error {
	var firstErr error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	app.closers = nil
	return firstErr
}
