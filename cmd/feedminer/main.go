// Package main is the entry point for the feedminer CLI.
//
// feedminer can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	feedminer serve -c config.yaml          # Poll nodes and serve the API
//	feedminer validate -c config.yaml       # Validate configuration
//	feedminer poll -c config.yaml [node...] # Poll once and print records
//	feedminer gc -c config.yaml node...     # Remove a node's side files
//	feedminer version                       # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/feedminer/config"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "feedminer",
	Short: "Turn remote search queries into indicator feeds",
	Long: `feedminer periodically runs queries against authenticated search APIs
and turns the JSON results into indicator records.

Quick start:
  1. Create a config file (feedminer.yaml)
  2. Run: feedminer serve -c feedminer.yaml
  3. Read records from http://localhost:8080/api/records

Example config:
  port: 8080
  poll_interval: 5m
  nodes:
    - name: edge-logins
      url: https://search.example.com/api/v1/query
      query_string: '#type=login | groupBy(src_ip)'
      extractor: events
      indicator: src_ip`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "feedminer %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadConfig loads the config file named by --config and resolves the
// settings layered over it.
func loadConfig(cmd *cobra.Command) (*config.Config, config.Settings, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		return nil, config.Settings{}, fmt.Errorf("a config file is required (use --config)")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, config.Settings{}, fmt.Errorf("invalid config: %w", err)
	}

	settings, err := config.ResolveSettings(cfg, configFile, cmd.Flags())
	if err != nil {
		return nil, config.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, settings, nil
}
