package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"Actionboard/internal/analytics"
	"Actionboard/internal/api"
	"Actionboard/internal/config"
	"Actionboard/internal/github"
	"Actionboard/internal/logging"
	"Actionboard/internal/metrics"
	"Actionboard/internal/poller"
	"Actionboard/internal/retry"
	"Actionboard/internal/store"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run feed over WebSocket and server-sent events",
		Long: `Start the HTTP server. Every client connected to /ws or /api/v1/stream
gets its own polling loop against the GitHub API and receives a full
snapshot of the latest workflow runs after each fetch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, cmd.Flags())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (optional)")
	cmd.Flags().IntP("port", "p", 3000, "Port to listen on")
	cmd.Flags().String("address", "127.0.0.1", "Address to bind")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func runServe(ctx context.Context, configPath string, flags *pflag.FlagSet) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup structured logging
	logger, err := logging.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logger.Close()

	logger.Info("starting actionboard",
		"version", version,
		"address", cfg.Server.Address,
		"port", cfg.Server.Port,
		"max_repositories", cfg.Poller.MaxRepositories,
	)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.NewMetrics(registry)
	met.BuildInfo.WithLabelValues(version).Set(1)

	// Initialize GitHub client and poller
	ghClient := github.NewClient(cfg.GitHub, met, logger.Logger)
	p := poller.New(ghClient, poller.ConfigFrom(cfg.Poller), retry.FromConfig(cfg.Retry), met, logger.Logger)

	// Initialize store
	st, err := store.New(store.StoreConfig{
		Enabled:   cfg.Store.Enabled,
		Path:      cfg.Store.Path,
		MaxEvents: cfg.Store.MaxEvents,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	apiServer := api.New(cfg, version, p, analytics.NewTracker(), st, met, registry, logger.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received shutdown signal")
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
