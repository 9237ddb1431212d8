// Package config implements the "mds config" subcommands.
package config

import "github.com/spf13/cobra"

// Cmd is the parent command for configuration management.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

func init() {
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}
