package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/feedminer"
	"github.com/jpalmerr/feedminer/config"
)

// pollCmd runs every query once and prints the records.
var pollCmd = &cobra.Command{
	Use:   "poll [node...]",
	Short: "Poll nodes once and print their records",
	Long: `Poll the named nodes, or every node, once and print the records as JSON
keyed by node name. Credentials side configs are honoured as in serve.

Example:
  feedminer poll -c config.yaml
  feedminer poll -c config.yaml edge-logins`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, settings, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(settings.LogLevel)

	nodes, err := config.BuildNodes(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m, err := feedminer.New(
		feedminer.WithNodes(nodes...),
		feedminer.WithConfigDir(settings.ConfigDir),
		feedminer.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create miner: %w", err)
	}

	names := args
	if len(names) == 0 {
		for _, n := range nodes {
			names = append(names, n.Name())
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pollNodes(ctx, m, names, cmd.OutOrStdout(), logger)
}

// pollNodes polls names in order and writes their records to out. Failed
// nodes are logged and reported together after all nodes were polled.
func pollNodes(ctx context.Context, m *feedminer.Miner, names []string, out io.Writer, logger *slog.Logger) error {
	results := make(map[string][]feedminer.Record, len(names))
	var errs []error

	for _, name := range names {
		records, err := m.Poll(ctx, name)
		if err != nil {
			logger.Error("poll failed", "node", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if records == nil {
			records = []feedminer.Record{}
		}
		results[name] = records
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}

	return errors.Join(errs...)
}
