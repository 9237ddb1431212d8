package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittomds/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with every default value filled in.

Without --config the file goes to $XDG_CONFIG_HOME/dittomds/config.yaml.

Examples:
  # Create the default config
  mds config init

  # Overwrite an existing file at a custom path
  mds config init --config ./config.yaml --force`,
	RunE: runConfigInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var (
		path string
		err  error
	)
	if configPath != "" {
		path, err = configPath, config.InitConfigToPath(configPath, initForce)
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}
