// Package commands implements the mds server commands.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/marmos91/dittomds/cmd/mds/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "mds",
	Short: "dittomds - lease manager and block recovery service",
	Long: `mds runs the dittomds metadata authority or one of its storage nodes.

The authority grants write leases on files, tracks the replicas of their
blocks and recovers files whose writers went away.

Use "mds [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return configFile
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittomds/config.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(datanodeCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configcmd.Cmd)
}
