package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "Endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_LeaseLimits(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.MDS.Lease.HardLimit = cfg.MDS.Lease.SoftLimit / 2

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for hard limit below soft limit")
	}
}

func TestValidate_ZeroReplication(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.MDS.Replication = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for zero replication")
	}
}

func TestValidate_StorageNodes(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Cluster.StorageNodes = []StorageNodeConfig{{ID: "dn-0", URL: "not a url"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for malformed node URL")
	}

	cfg.Cluster.StorageNodes = []StorageNodeConfig{
		{ID: "dn-0", URL: "http://a:9870"},
		{ID: "dn-0", URL: "http://b:9870"},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("Expected duplicate node error, got: %v", err)
	}
}

func TestValidate_BadgerStoreNeedsPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Datanode.Store = ReplicaStoreConfig{Type: "badger"}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for badger store without path")
	}

	cfg.Datanode.Store.Path = "/tmp/dn"
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected badger store with path to validate, got: %v", err)
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		if err := Validate(cfg); err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
