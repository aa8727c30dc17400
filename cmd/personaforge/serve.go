package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/personaforge/personaforge/config"
	"github.com/personaforge/personaforge/pkg/api"
	"github.com/personaforge/personaforge/pkg/engine"
	"github.com/personaforge/personaforge/pkg/metrics"
	"github.com/personaforge/personaforge/pkg/telemetry/tracing"
	"github.com/personaforge/personaforge/pkg/version"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

func runServe(ctx context.Context, flags *globalFlags) error {
	loader := config.NewLoader()
	cfg, configPath, err := flags.loadWith(loader)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Close()

	build := version.Get()
	log.Info("Starting PersonaForge",
		"version", build.Version,
		"buildTime", build.BuildTime,
		"gitCommit", build.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.ToTracingConfig(), cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		return err
	}

	metricsManager := metrics.NewManager(cfg.Metrics.ToMetricsConfig())
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	eng, err := engine.New(cfg, log, engine.WithMetrics(metricsManager))
	if err != nil {
		log.Error("Failed to create engine", "error", err)
		return err
	}
	if err := eng.Start(ctx); err != nil {
		log.Error("Failed to start engine", "error", err)
		return err
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, loader,
			config.WithWatcherLogger(log),
			config.WithCurrent(cfg),
		)
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			watcher.OnChange(config.LogLevelApplier(log))
			go func() {
				if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	httpServer := api.NewHTTPServer(cfg, log, api.NewHandlers(eng, log))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	log.Info("PersonaForge is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
	)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error("HTTP server error", "error", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	// Stopping the engine drains queued snapshots before storage closes.
	log.Info("Stopping engine")
	if err := eng.Stop(shutdownCtx); err != nil {
		log.Error("Error during engine shutdown", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("Error flushing traces", "error", err)
	}

	log.Info("PersonaForge stopped gracefully")
	return runErr
}
