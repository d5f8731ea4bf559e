package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/internal/metrics"
	"github.com/BaSui01/evalflow/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and metrics servers",
		Long: `Starts the batch API on server.http_port and Prometheus metrics on
server.metrics_port. Configuration is read from --config (YAML) and
EVALFLOW_* environment variables. When a config file is given, changes to
log.level are applied without a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, loader, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting evalflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)
	if err := cfg.BackendReady(); err != nil {
		logger.Warn("completion backend is not fully configured; rows will carry error markers", zap.Error(err))
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("evalflow", logger)
	client := buildClient(cfg.Backend, collector, logger)

	orch, err := buildOrchestrator(cfg, client, collector, logger)
	if err != nil {
		return err
	}

	store, err := openRunStore(ctx, cfg.Store, collector, logger)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("run store close failed", zap.Error(err))
			}
		}()
		orch.WithRunSink(store)
	}

	if configPath != "" {
		watcher := config.NewWatcher(loader, configPath, config.WithWatcherLogger(logger))
		watcher.OnReload(func(next *config.Config) {
			newLevel := parseLevel(next.Log.Level)
			if newLevel != level.Level() {
				level.SetLevel(newLevel)
				logger.Info("log level changed", zap.String("level", newLevel.String()))
			}
		})
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher not started", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	srv := NewServer(cfg, serverDeps{dispatcher: orch, store: store, collector: collector}, logger)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("evalflow stopped")
	return nil
}
