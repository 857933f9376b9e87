package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/feedminer"
	"github.com/jpalmerr/feedminer/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd polls the configured nodes and serves the API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll nodes and serve the API",
	Long: `Poll the configured nodes and serve their records.

The server will:
  - Load configuration from the specified YAML file
  - Poll every node immediately, then at its interval
  - Serve node status, records and a change stream on the configured port

Send SIGHUP to re-read every node's credentials side config. The server runs
until interrupted (Ctrl+C) or receives SIGTERM.

Settings may be overridden by FEEDMINER_* environment variables and flags:
  FEEDMINER_PORT, FEEDMINER_POLL_INTERVAL, FEEDMINER_MAX_CONCURRENCY,
  FEEDMINER_CONFIG_DIR (or MM_CONFIG_DIR), FEEDMINER_METRICS,
  FEEDMINER_LOG_LEVEL

The side-config and hup endpoints are served only when control_token (or
FEEDMINER_CONTROL_TOKEN) is set, and require "Authorization: Bearer <token>".

Example:
  feedminer serve -c config.yaml
  feedminer serve -c /etc/feedminer/config.yaml --config-dir /var/lib/feedminer`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, settings, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(settings.LogLevel)

	logger.Info("config loaded", "nodes", len(cfg.Nodes), "config_dir", settings.ConfigDir)

	nodes, err := config.BuildNodes(cfg)
	if err != nil {
		return fmt.Errorf("failed to build nodes: %w", err)
	}

	opts := []feedminer.Option{
		feedminer.WithNodes(nodes...),
		feedminer.WithPort(settings.Port),
		feedminer.WithPollInterval(settings.PollInterval),
		feedminer.WithMaxConcurrency(settings.MaxConcurrency),
		feedminer.WithConfigDir(settings.ConfigDir),
		feedminer.WithMetrics(settings.Metrics),
		feedminer.WithLogger(logger),
	}
	if settings.ControlToken != "" {
		opts = append(opts, feedminer.WithControlToken(settings.ControlToken))
	} else {
		logger.Info("control api disabled", "reason", "no control token configured")
	}

	m, err := feedminer.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create miner: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGHUP reloads credentials side configs
	hups := make(chan os.Signal, 1)
	signal.Notify(hups, syscall.SIGHUP)
	defer signal.Stop(hups)
	go func() {
		for {
			select {
			case <-hups:
				replaced, err := m.Hup("", "signal")
				if err != nil {
					logger.Error("hup failed", "error", err)
					continue
				}
				logger.Info("hup processed", "replaced", replaced)
			case <-ctx.Done():
				return
			}
		}
	}()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
