// Package app wires the detection engine from process and file configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	warehouse "adwatch-backend"
	"adwatch-backend/internal/api"
	"adwatch-backend/internal/config"
	"adwatch-backend/internal/detection"
	"adwatch-backend/internal/metricsource"
	"adwatch-backend/internal/noise"
	"adwatch-backend/internal/remediation"
	"adwatch-backend/internal/scheduler"
	"adwatch-backend/internal/storage"
	"adwatch-backend/internal/telemetry"
	"adwatch-backend/pkg/log"
)

type App struct {
	Store        storage.AlertStore
	Source       detection.MetricSource
	Detectors    *detection.Registry
	Orchestrator *remediation.Orchestrator
	Status       *noise.StatusManager
	Runner       *scheduler.Runner
	Metrics      *telemetry.Metrics
	Prometheus   *prometheus.Registry
	RemedyOpts   remediation.Options

	logger  log.Logger
	closers []func() error
}

// Build opens the alert store and metric source and assembles the detectors,
// orchestrator and runner. Close releases what Build opened.
func Build(ctx context.Context, cfg *config.Config, file *config.File, publisher scheduler.Publisher, logger log.Logger) (*App, error) {
	a := &App{logger: logger}
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	source, err := a.openSource(ctx, cfg, file)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Source = source

	a.Prometheus = prometheus.NewRegistry()
	a.Prometheus.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = telemetry.NewMetrics(a.Prometheus)

	a.Detectors, err = detection.NewRegistry(file.Alerts, detection.Deps{
		Source:  source,
		Noise:   noise.NewController(store),
		History: store,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	playbooks := remediation.NewPlaybookRegistry(remediation.BuiltinPlaybooks()...)
	guardrails := remediation.NewEvaluator(remediation.Policies(file.GuardrailList())...)
	a.Orchestrator = remediation.NewOrchestrator(playbooks, guardrails,
		remediation.WithHistory(store),
		remediation.WithLogger(logger),
	)
	a.Status = noise.NewStatusManager(store, nil)
	a.RemedyOpts = remediation.Options{
		DryRun:             cfg.Remediation.DryRun,
		AllowBidChanges:    cfg.Remediation.AllowBidChanges,
		AllowBudgetChanges: cfg.Remediation.AllowBudgetChanges,
		AllowPauses:        cfg.Remediation.AllowPauses,
	}
	a.Runner = scheduler.NewRunner(a.Detectors, file.Entities, scheduler.Options{
		Product:    file.Product,
		Window:     file.Window,
		Workers:    cfg.Worker.WorkerCount,
		JobTimeout: cfg.Worker.JobTimeout,
		AutoRemedy: cfg.Remediation.Auto,
		RemedyOpts: a.RemedyOpts,
		Publisher:  publisher,
		Remediator: a.Orchestrator,
		States:     store,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	return a, nil
}

// Handler returns the admin API bound to this app.
func (a *App) Handler() *api.Handler {
	return &api.Handler{
		Store:      a.Store,
		Status:     a.Status,
		Runner:     a.Runner,
		Remediator: a.Orchestrator,
		RemedyOpts: a.RemedyOpts,
		Gatherer:   a.Prometheus,
		Logger:     a.logger,
		Timeout:    10 * time.Second,
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnf(context.Background(), "close: %v", err)
		}
	}
	a.closers = nil
}

func OpenStore(ctx context.Context, cfg config.StoreConfig) (storage.AlertStore, error) {
	switch strings.ToLower(cfg.Kind) {
	case "postgres", "":
		return storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "sqlite":
		return storage.NewSQLiteStore(ctx, cfg.SQLitePath)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown alert store %q", config.ErrInvalid, cfg.Kind)
	}
}

// openSource prefers the routed source file when one is configured. The
// warehouse, when configured, backs every source of type warehouse.
func (a *App) openSource(ctx context.Context, cfg *config.Config, file *config.File) (detection.MetricSource, error) {
	var wh detection.MetricSource
	if cfg.Warehouse.Enabled() {
		connCfg, err := cfg.Warehouse.ConnectionConfig()
		if err != nil {
			return nil, err
		}
		conn, err := warehouse.NewConnector(connCfg)
		if err != nil {
			return nil, fmt.Errorf("warehouse connector: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		src, err := metricsource.Connect(ctx, conn, file.Warehouse)
		if err != nil {
			return nil, err
		}
		if err := src.Validate(ctx); err != nil {
			a.logger.Warnf(ctx, "warehouse mapping: %v", err)
		}
		wh = src
	}
	if cfg.Files.MetricSourcePath != "" {
		sc, err := metricsource.LoadConfig(cfg.Files.MetricSourcePath)
		if err != nil {
			return nil, err
		}
		return sc.BuildRegistry(wh)
	}
	if wh == nil {
		return nil, errors.New("no metric source configured: set WAREHOUSE_TYPE or METRIC_SOURCE_CONFIG_PATH")
	}
	return wh, nil
}
