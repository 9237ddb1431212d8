package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dittomds configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  mds config validate

  # Validate specific config file
  mds config validate --config /etc/dittomds/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if len(cfg.Cluster.StorageNodes) < cfg.MDS.Replication {
		warnings = append(warnings, fmt.Sprintf(
			"%d storage nodes configured, replication is %d; the rest must register at runtime",
			len(cfg.Cluster.StorageNodes), cfg.MDS.Replication))
	}
	if cfg.Datanode.Store.Type == "memory" {
		warnings = append(warnings, "Datanode replica store is in memory; replicas are lost on restart")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  API port:          %d\n", cfg.API.Port)
	_, _ = fmt.Fprintf(out, "  Lease soft limit:  %s\n", cfg.MDS.Lease.SoftLimit)
	_, _ = fmt.Fprintf(out, "  Lease hard limit:  %s\n", cfg.MDS.Lease.HardLimit)
	_, _ = fmt.Fprintf(out, "  Replication:       %d\n", cfg.MDS.Replication)
	_, _ = fmt.Fprintf(out, "  Trash:             %t\n", cfg.Namespace.Trash)
	_, _ = fmt.Fprintf(out, "  Log level:         %s\n", cfg.Logging.Level)

	return nil
}
