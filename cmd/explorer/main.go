// Explorer - Browse entity-resolution groups, their money flows and reports.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/explorer/internal/api"
	"github.com/opensource-finance/explorer/internal/artifact"
	"github.com/opensource-finance/explorer/internal/bus"
	"github.com/opensource-finance/explorer/internal/cache"
	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/ledger"
	"github.com/opensource-finance/explorer/internal/repository"
	"github.com/opensource-finance/explorer/internal/rules"
	"github.com/opensource-finance/explorer/internal/service"
	"github.com/opensource-finance/explorer/internal/settings"
	"github.com/opensource-finance/explorer/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := domain.LoadConfig(os.Getenv)

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting explorer",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"base_dir", cfg.Artifacts.BaseDir,
		"ledger", cfg.Ledger.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"watch", cfg.Artifacts.Watch,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	uiSettings := settings.Load(cfg.Artifacts.SettingsFile)

	// Initialize artifact store and report ledger
	store := artifact.NewFileStore(cfg.Artifacts)
	reportStore, err := newReportStore(cfg, store)
	if err != nil {
		slog.Error("failed to initialize report ledger", "error", err)
		os.Exit(1)
	}
	reports := ledger.New(reportStore)
	defer reports.Close()
	slog.Info("report ledger initialized", "driver", cfg.Ledger.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize expression engine
	engine, err := rules.NewEngine(rules.DefaultMaxPrograms)
	if err != nil {
		slog.Error("failed to initialize expression engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	svc := service.New(store, reports, service.Options{
		Engine:     engine,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Settings:   uiSettings,
		PayloadTTL: cfg.Cache.PayloadTTL,
	})

	// Keep caches in sync with artifact changes and peer instances
	refreshWorker := worker.NewWorker(busImpl, svc)
	if err := refreshWorker.Start(); err != nil {
		slog.Error("failed to start refresh worker", "error", err)
		os.Exit(1)
	}

	var stopWatch func()
	if cfg.Artifacts.Watch {
		watcher := artifact.NewWatcher(cfg.Artifacts, busImpl, artifact.DefaultDebounce)
		stopWatch, err = watcher.Watch(ctx)
		if err != nil {
			slog.Error("failed to watch artifacts", "error", err)
		} else {
			slog.Info("watching artifacts", "dir", cfg.Artifacts.EntitiesDir)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("explorer is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, uiSettings, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if stopWatch != nil {
		stopWatch()
	}
	if err := refreshWorker.Stop(); err != nil {
		slog.Error("failed to stop refresh worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("explorer shutdown complete")
}

// newReportStore picks the ledger backend. The file ledger lives next to
// the artifacts and is created empty on first start.
func newReportStore(cfg *domain.Config, store *artifact.FileStore) (domain.ReportStore, error) {
	switch cfg.Ledger.Driver {
	case "file", "":
		if err := store.EnsureReportsFile(); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return repository.New(cfg.Ledger)
	}
}

func printBanner(cfg *domain.Config, s domain.Settings, version string) {
	fmt.Println()
	fmt.Printf("  %s\n", s.Title)
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Data:     %s\n", cfg.Artifacts.BaseDir)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /api/groups            - List groups")
	fmt.Println("    GET  /api/groups/{id}       - Group detail with snapshots")
	fmt.Println("    GET  /api/network           - Counterparty network")
	fmt.Println("    GET  /api/reports           - List reports")
	fmt.Println("    POST /api/reports           - Submit a report")
	fmt.Println("    GET  /api/snapshots         - List snapshots")
	fmt.Println("    GET  /api/summary           - Dataset summary")
	fmt.Println("    GET  /api/settings          - UI settings")
	fmt.Println("    POST /api/actions/refresh   - Drop cached artifacts")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println("    GET  /metrics               - Prometheus metrics")
	fmt.Println()
}
