package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitConfig_WritesToConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if configPath != GetDefaultConfigPath() {
		t.Errorf("Expected %s, got %s", GetDefaultConfigPath(), configPath)
	}
	if !DefaultConfigExists() {
		t.Error("Default config should exist after init")
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	for _, section := range []string{
		"# dittomds Configuration File",
		"logging:",
		"api:",
		"mds:",
		"lease:",
		"recovery:",
		"namespace:",
		"datanode:",
	} {
		if !strings.Contains(string(content), section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	if _, err := InitConfig(false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error on second init, got: %v", err)
	}
	if _, err := InitConfig(true); err != nil {
		t.Errorf("InitConfig with force failed: %v", err)
	}
}

func TestInitConfigToPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	if err := InitConfigToPath(configPath, false); err == nil {
		t.Error("Expected error when config already exists")
	}

	// A forced init replaces an edited file with the defaults.
	if err := os.WriteFile(configPath, []byte("api:\n  port: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := InitConfigToPath(configPath, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected forced init to restore port 8080, got %d", cfg.API.Port)
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Generated config does not validate: %v", err)
	}

	want := GetDefaultConfig()
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected INFO log level, got %q", cfg.Logging.Level)
	}
	if cfg.MDS.Lease.SoftLimit != want.MDS.Lease.SoftLimit || cfg.MDS.Lease.HardLimit != want.MDS.Lease.HardLimit {
		t.Errorf("Expected default lease limits %v/%v, got %v/%v",
			want.MDS.Lease.SoftLimit, want.MDS.Lease.HardLimit, cfg.MDS.Lease.SoftLimit, cfg.MDS.Lease.HardLimit)
	}
	if cfg.MDS.Replication != want.MDS.Replication {
		t.Errorf("Expected replication %d, got %d", want.MDS.Replication, cfg.MDS.Replication)
	}
	if cfg.Datanode.Store.Type != "memory" {
		t.Errorf("Expected memory replica store, got %q", cfg.Datanode.Store.Type)
	}
}
