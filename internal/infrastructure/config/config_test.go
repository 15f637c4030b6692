package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 3
storage:
  data_dir: "/tmp/dealer"
changefeed:
  enabled: true
  topic_prefix: "lot42"
  mqtt:
    broker:
      host: "broker.local"
      port: 8883
      tls: true
development:
  allow_clear_all: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Database.BusyTimeout != 3 {
		t.Errorf("Database.BusyTimeout = %d, want 3", cfg.Database.BusyTimeout)
	}
	if cfg.ChangeFeed.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT host = %q, want %q", cfg.ChangeFeed.MQTT.Broker.Host, "broker.local")
	}
	if cfg.ChangeFeed.TopicPrefix != "lot42" {
		t.Errorf("TopicPrefix = %q, want %q", cfg.ChangeFeed.TopicPrefix, "lot42")
	}
	// Defaults survive for keys the file leaves out.
	if cfg.ChangeFeed.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want default 100", cfg.ChangeFeed.BatchSize)
	}
	if !cfg.Development.AllowClearAll {
		t.Error("Development.AllowClearAll = false, want true")
	}
}

func TestLoad_DerivedDirectories(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: "/srv/dealer"
  documents_dir: "/mnt/docs"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join("/srv/dealer", "cache"); cfg.Storage.CacheDir != want {
		t.Errorf("CacheDir = %q, want %q", cfg.Storage.CacheDir, want)
	}
	if cfg.Storage.DocumentsDir != "/mnt/docs" {
		t.Errorf("DocumentsDir = %q, want explicit value", cfg.Storage.DocumentsDir)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Database.Path != "./data/dealer.db" {
		t.Errorf("Database.Path = %q, want default", cfg.Database.Path)
	}
	if cfg.Development.AllowClearAll {
		t.Error("AllowClearAll must default to false")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ""
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for empty database.path, got nil")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error %q does not name database.path", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DEALERCORE_DATABASE_PATH", "/env/dealer.db")
	t.Setenv("DEALERCORE_MQTT_HOST", "env-broker")
	t.Setenv("DEALERCORE_MQTT_PASSWORD", "secret")
	t.Setenv("DEALERCORE_INFLUXDB_TOKEN", "token")
	t.Setenv("DEALERCORE_ALLOW_CLEAR_ALL", "true")

	path := writeConfig(t, `
database:
  path: "/file/dealer.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/env/dealer.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.ChangeFeed.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT host = %q, want env override", cfg.ChangeFeed.MQTT.Broker.Host)
	}
	if cfg.ChangeFeed.MQTT.Auth.Password != "secret" {
		t.Error("MQTT password not overridden")
	}
	if cfg.Telemetry.InfluxDB.Token != "token" {
		t.Error("InfluxDB token not overridden")
	}
	if !cfg.Development.AllowClearAll {
		t.Error("AllowClearAll not overridden")
	}
}

func TestLoad_BadBoolEnv(t *testing.T) {
	t.Setenv("DEALERCORE_ALLOW_CLEAR_ALL", "perhaps")
	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for unparsable DEALERCORE_ALLOW_CLEAR_ALL")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.fillDerived()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "negative cache age",
			mutate:  func(c *Config) { c.Storage.CacheMaxAgeDays = -1 },
			wantErr: "cache_max_age_days",
		},
		{
			name: "changefeed disabled ignores broker",
			mutate: func(c *Config) {
				c.ChangeFeed.MQTT.Broker.Host = ""
			},
		},
		{
			name: "changefeed without broker",
			mutate: func(c *Config) {
				c.ChangeFeed.Enabled = true
				c.ChangeFeed.MQTT.Broker.Host = ""
			},
			wantErr: "broker.host",
		},
		{
			name: "changefeed wildcard prefix",
			mutate: func(c *Config) {
				c.ChangeFeed.Enabled = true
				c.ChangeFeed.TopicPrefix = "dealer/#"
			},
			wantErr: "topic_prefix",
		},
		{
			name: "changefeed invalid qos",
			mutate: func(c *Config) {
				c.ChangeFeed.Enabled = true
				c.ChangeFeed.MQTT.QoS = 3
			},
			wantErr: "qos",
		},
		{
			name: "telemetry without token",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
			},
			wantErr: "DEALERCORE_INFLUXDB_TOKEN",
		},
		{
			name: "telemetry complete",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.InfluxDB.Token = "t"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.ChangeFeedInterval(); got != 10*time.Second {
		t.Errorf("ChangeFeedInterval() = %v, want 10s", got)
	}
	if got := cfg.TelemetryInterval(); got != time.Minute {
		t.Errorf("TelemetryInterval() = %v, want 1m", got)
	}
	if got := cfg.CacheMaxAge(); got != 30*24*time.Hour {
		t.Errorf("CacheMaxAge() = %v, want 720h", got)
	}
}
