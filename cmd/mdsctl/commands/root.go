// Package commands implements the mdsctl CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/cmd/mdsctl/cmdutil"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mdsctl",
	Short: "dittomds client",
	Long: `mdsctl inspects and drives a running dittomds authority.

It shows leases, write sessions, block locations and recovery history,
and can start a recovery or edit the namespace by hand.

Use "mdsctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("server", cmdutil.DefaultServerURL, "Authority URL")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(leaseCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(recoveriesCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(nsCmd)
}
