package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/feedminer"
	"github.com/jpalmerr/feedminer/config"
)

// gcCmd removes the side files of nodes.
var gcCmd = &cobra.Command{
	Use:   "gc node...",
	Short: "Remove the side files of nodes",
	Long: `Remove the credentials side config and, for nodes using a client
certificate, the certificate and key of the named nodes.

Nodes still in the config file are located as configured. For nodes that were
already removed from it, the derived locations in the config dir are used;
pass --client-cert to also remove {name}.crt and {name}.pem.

Missing files are not an error.

Example:
  feedminer gc -c config.yaml old-node
  feedminer gc -c config.yaml --client-cert old-mtls-node`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGC,
}

func init() {
	rootCmd.AddCommand(gcCmd)

	gcCmd.Flags().Bool("client-cert", false, "also remove derived certificate and key of unconfigured nodes")
}

func runGC(cmd *cobra.Command, args []string) error {
	cfg, settings, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(settings.LogLevel)
	clientCert, _ := cmd.Flags().GetBool("client-cert")

	out := cmd.OutOrStdout()
	for _, name := range args {
		var opts []feedminer.NodeOption
		if nc, ok := cfg.Node(name); ok {
			opts = config.NodeOptions(nc)
		} else if clientCert {
			opts = append(opts, feedminer.WithClientCertRequired(true))
		}

		removed, err := feedminer.GC(name, settings.ConfigDir, logger, opts...)
		if err != nil {
			return err
		}
		for _, path := range removed {
			fmt.Fprintf(out, "removed %s\n", path)
		}
		if len(removed) == 0 {
			fmt.Fprintf(out, "%s: nothing to remove\n", name)
		}
	}
	return nil
}
