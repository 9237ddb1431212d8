package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# dittomds Configuration File
#
# Every key can be overridden with an environment variable:
#   DITTOMDS_<SECTION>_<KEY>, e.g. DITTOMDS_LOGGING_LEVEL=DEBUG
#
# The same file configures the authority (mds start) and a storage node
# (mds datanode).

`

// InitConfig writes a default configuration file to the default location
// and returns its path. It refuses to overwrite an existing file unless
// force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeConfigFile(filepath.Clean(path), append([]byte(configHeader), data...))
}
