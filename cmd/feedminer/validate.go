package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/feedminer"
	"github.com/jpalmerr/feedminer/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a feedminer configuration file without starting the server.

This command parses the YAML, expands environment variables, validates all
fields and resolves every node's side file locations. It's useful for CI/CD
pipelines or pre-deployment checks. Extractor expressions are compiled on
first poll and are not checked here.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  feedminer validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, settings, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	nodes, err := config.BuildNodes(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", settings.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", settings.PollInterval)
	fmt.Fprintf(out, "  Config dir:    %s\n", settings.ConfigDir)
	control := "disabled"
	if settings.ControlToken != "" {
		control = "enabled"
	}
	fmt.Fprintf(out, "  Control API:   %s\n", control)
	fmt.Fprintf(out, "  Nodes:         %d\n", len(nodes))
	for _, n := range nodes {
		fmt.Fprintf(out, "    - %s (%s, auth: %s)\n", n.Name(), n.URL(), authSummary(n, settings.ConfigDir))
	}

	return nil
}

// authSummary describes how a node is configured to authenticate.
func authSummary(n feedminer.Node, configDir string) string {
	side, cert, key := n.Files(configDir)
	switch {
	case n.ClientCertRequired():
		return fmt.Sprintf("client-cert %s + %s", cert, key)
	case n.Username() != "":
		return "basic, side config " + side
	default:
		return "side config " + side
	}
}
