package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/seqguard/seqguard/internal/daemon"
	"github.com/seqguard/seqguard/internal/logger"
	"github.com/seqguard/seqguard/internal/rule"
	"github.com/seqguard/seqguard/internal/sink"
	"github.com/seqguard/seqguard/internal/tracker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest daemon",
	Long: `Run the seqguard ingest daemon.

The daemon accepts actions over HTTP, evaluates them against the
loaded rule set and fans detections out to the configured sinks: the
structured log, the SSE stream, Prometheus counters and, when storage
is enabled, the detection store.

Example:
  seqguard serve
  seqguard serve --rules ./rules --config seqguard.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Settings.LogLevel, cfg.Settings.LogFile); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	loader, err := loadRules(cfg)
	if err != nil {
		return err
	}
	snap := loader.Snapshot()
	if snap.Len() == 0 {
		return fmt.Errorf("no rules loaded; nothing to detect")
	}
	logger.Info().Int("rules", snap.Len()).Msg("Rule set loaded")

	dispatcher := sink.NewDispatcher(0)
	defer dispatcher.Close()
	dispatcher.Add(sink.NewLogSink(logger.Logger()))

	var metrics *sink.Metrics
	var registry *prometheus.Registry
	if cfg.Server.Metrics {
		registry = prometheus.NewRegistry()
		metrics = sink.NewMetrics(registry)
		dispatcher.Add(metrics)
	}

	var store *sink.Store
	if cfg.Storage.Enabled {
		store, err = sink.OpenStore(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening detection store: %w", err)
		}
		defer store.Close()
		dispatcher.Add(store)
		logger.Info().Str("path", cfg.Storage.Path).Msg("Detection store enabled")
	}

	trk := tracker.New(snap, tracker.Config{
		IdleTTL:       time.Duration(cfg.Tracker.IdleTTL),
		SweepInterval: time.Duration(cfg.Tracker.SweepInterval),
		MinHistory:    cfg.Tracker.MinHistory,
	}, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trk.Run(ctx)

	srv := daemon.NewServer(cfg, trk, store, metrics, registry, Version)
	dispatcher.Add(srv.Broadcaster())

	if cfg.Settings.WatchRules && cfg.Settings.RulesDir != "" {
		// Reload swaps the snapshot atomically; live sessions keep the
		// set they started with.
		watcher := rule.NewWatcher(cfg.Settings.RulesDir, func() (*rule.Snapshot, error) {
			fresh, err := loadRules(cfg)
			if err != nil {
				return nil, err
			}
			return fresh.Snapshot(), nil
		}, trk.SetSnapshot)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("Rules watcher stopped")
			}
		}()
	}

	if err := srv.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}
