// Package bootstrap wires the HostSentry components together and manages
// their startup and shutdown order.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hostsentry/api"
	"hostsentry/collect"
	"hostsentry/config"
	"hostsentry/core"
	"hostsentry/detect"
	"hostsentry/notify"
	"hostsentry/risk"
	"hostsentry/storage"
)

// App holds every running component of the HostSentry service.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Bus       *core.EventBus
	Engine    *detect.RuleEngine
	Manager   *detect.AlertManager
	Detector  *detect.Detector
	Scorer    *risk.Scorer
	Hub       *api.Hub
	APIServer *api.API

	SQLite         *storage.SQLite
	AlertStorage   *storage.AlertStorage
	EventStorage   *storage.EventStorage
	MetricsStorage *storage.MetricsStorage
	EventWriter    *storage.EventWriter
	Retention      *storage.RetentionManager

	Collectors  *collect.Runner
	Snapshotter *collect.Snapshotter

	fileCollector *collect.FileCollector
	apiErrCh      chan error
}

// NewApp initializes all components without starting any goroutines.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{apiErrCh: make(chan error, 1)}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("HostSentry starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	if err := EnsureDataDir(cfg, sugar); err != nil {
		return nil, err
	}

	// Storage
	sqlite, err := storage.NewSQLite(SQLitePath(cfg), sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.SQLite = sqlite
	app.AlertStorage = storage.NewAlertStorage(sqlite, sugar)
	app.EventStorage = storage.NewEventStorage(sqlite, sugar)
	app.MetricsStorage = storage.NewMetricsStorage(sqlite, sugar)
	app.EventWriter = storage.NewEventWriter(app.EventStorage, 1000, 64, 2*time.Second, sugar)
	app.Retention = storage.NewRetentionManager(
		app.EventStorage, app.AlertStorage, app.MetricsStorage,
		cfg.Retention.EventDays, cfg.Retention.AlertDays, cfg.Retention.HistoryDays,
		sugar,
	)

	// Rules and blocklist
	rules, err := core.LoadRules(cfg.Rules.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	sugar.Infow("Rules loaded", "count", len(rules), "file", cfg.Rules.File)

	blocklist, err := core.LoadBlocklist(cfg.Rules.BlocklistFile, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to load blocklist: %w", err)
	}
	sugar.Infow("Blocklist loaded", "networks", blocklist.Len())

	// Detection pipeline
	app.Bus = core.NewEventBus(cfg.Bus.BufferSize, sugar)
	app.Engine = detect.NewRuleEngine(rules, blocklist, sugar)
	app.Scorer = risk.NewScorer(cfg.Risk.DecayLambda, cfg.Risk.MaxScore)
	app.Hub = api.NewHub(ctx, sugar)

	minSeverity, err := core.ParseSeverity(cfg.Notify.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("invalid notify.min_severity: %w", err)
	}
	notifier := notify.NewWebhookNotifier(notify.Config{
		WebhookURL:  cfg.Notify.WebhookURL,
		Headers:     cfg.Notify.Headers,
		MinSeverity: minSeverity,
		Timeout:     cfg.Notify.Timeout,
	}, sugar)

	app.Manager = detect.NewAlertManager(
		app.AlertStorage, app.MetricsStorage, app.Scorer, app.Hub, notifier,
		detect.ManagerConfig{
			SuppressionWindow: cfg.Engine.SuppressionWindow,
			DedupCacheSize:    cfg.Engine.DedupCacheSize,
			PersistAttempts:   cfg.Engine.PersistAttempts,
			PersistBackoff:    cfg.Engine.PersistBackoff,
		},
		sugar,
	)
	app.Detector = detect.NewDetector(app.Bus, app.Engine, app.Manager, app.EventWriter, sugar)

	// Collectors
	collectors, err := app.buildCollectors()
	if err != nil {
		return nil, err
	}
	interval := cfg.Collectors.Interval
	if cfg.Simulator.Enabled {
		interval = cfg.Simulator.Interval
	}
	app.Collectors = collect.NewRunner(app.Bus, collectors, interval, sugar)
	app.Snapshotter = collect.NewSnapshotter(app.MetricsStorage, app.Scorer, sugar)

	// API
	app.APIServer = api.NewAPI(
		app.AlertStorage, app.EventStorage, app.MetricsStorage,
		app.Manager, app.Engine, app.Scorer, app.Bus, app.Hub, cfg, sugar,
	)

	return app, nil
}

func (a *App) buildCollectors() ([]collect.Collector, error) {
	cfg := a.Config

	if cfg.Simulator.Enabled {
		a.Sugar.Info("Simulator enabled, skipping host collectors")
		return []collect.Collector{collect.NewSimulator()}, nil
	}

	collectors := []collect.Collector{
		collect.NewCPUCollector(),
		collect.NewPortCollector(cfg.Collectors.AllowedPorts),
		collect.NewProcessCollector(cfg.Collectors.ProcessWatchlist),
		collect.NewConnectionCollector(),
	}

	if cfg.Collectors.AuthLogPath != "" {
		collectors = append(collectors, collect.NewAuthLogCollector(cfg.Collectors.AuthLogPath))
	}

	if cfg.Collectors.MonitoredDir != "" {
		fc, err := collect.NewFileCollector(cfg.Collectors.MonitoredDir, a.Sugar)
		if err != nil {
			a.Sugar.Errorw("Failed to start file collector, continuing without it",
				"dir", cfg.Collectors.MonitoredDir, "error", err)
		} else {
			a.fileCollector = fc
			collectors = append(collectors, fc)
		}
	}

	return collectors, nil
}

// Start launches all service goroutines.
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Start()
	a.EventWriter.Start()
	a.Detector.Start()
	a.Collectors.Start()

	if err := a.Snapshotter.Start(a.Config.Collectors.SnapshotSchedule); err != nil {
		return fmt.Errorf("failed to start snapshotter: %w", err)
	}
	if err := a.Retention.Start(); err != nil {
		return fmt.Errorf("failed to start retention manager: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", a.Config.API.Host, a.Config.API.Port)
	go func() {
		a.Sugar.Infow("API server listening", "addr", addr)
		if err := a.APIServer.Start(addr); err != nil && err != http.ErrServerClosed {
			a.apiErrCh <- err
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received or the API
// server fails.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
		a.Sugar.Info("Shutdown signal received")
	case err := <-a.apiErrCh:
		a.Sugar.Errorw("API server failed", "error", err)
	}
}

// Shutdown stops all components, producers before consumers.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	// Phase 1 - stop producing events
	a.Sugar.Info("Phase 1: Stopping collectors...")
	if a.Collectors != nil {
		a.Collectors.Stop()
	}
	if a.fileCollector != nil {
		a.fileCollector.Close()
	}
	if a.Snapshotter != nil {
		a.Snapshotter.Stop()
	}

	// Phase 2 - stop the bus so the detector can drain what remains
	a.Sugar.Info("Phase 2: Stopping event bus...")
	if a.Bus != nil {
		a.Bus.Stop()
	}

	// Phase 3 - stop the detector after the backlog drains
	a.Sugar.Info("Phase 3: Stopping detector...")
	if a.Detector != nil {
		a.Detector.Stop()
	}

	// Phase 4 - flush buffered event writes
	a.Sugar.Info("Phase 4: Stopping event writer...")
	if a.EventWriter != nil {
		a.EventWriter.Stop()
	}

	// Phase 5 - stop the API server and the WebSocket hub
	a.Sugar.Info("Phase 5: Stopping API server...")
	if a.APIServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}

	// Phase 6 - stop background maintenance
	a.Sugar.Info("Phase 6: Stopping retention manager...")
	if a.Retention != nil {
		a.Retention.Stop()
	}

	// Phase 7 - close the database
	a.Sugar.Info("Phase 7: Closing database...")
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Errorw("Failed to close database", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	a.Logger.Sync()
}
