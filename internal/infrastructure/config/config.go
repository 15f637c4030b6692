package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for dealer-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	ChangeFeed  ChangeFeedConfig  `yaml:"changefeed"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Development DevelopmentConfig `yaml:"development"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StorageConfig locates the app's data directories on disk.
type StorageConfig struct {
	DataDir         string `yaml:"data_dir"`
	CacheDir        string `yaml:"cache_dir"`
	DocumentsDir    string `yaml:"documents_dir"`
	CacheMaxAgeDays int    `yaml:"cache_max_age_days"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ChangeFeedConfig controls publishing of the sync log over MQTT.
type ChangeFeedConfig struct {
	Enabled         bool       `yaml:"enabled"`
	IntervalSeconds int        `yaml:"interval_seconds"`
	BatchSize       int        `yaml:"batch_size"`
	TopicPrefix     string     `yaml:"topic_prefix"`
	MQTT            MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TelemetryConfig controls periodic storage telemetry.
type TelemetryConfig struct {
	Enabled         bool           `yaml:"enabled"`
	IntervalSeconds int            `yaml:"interval_seconds"`
	InfluxDB        InfluxDBConfig `yaml:"influxdb"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DevelopmentConfig holds switches that must stay off in production.
type DevelopmentConfig struct {
	// AllowClearAll lets the clear command wipe every record.
	AllowClearAll bool `yaml:"allow_clear_all"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DEALERCORE_SECTION_KEY
// For example: DEALERCORE_DATABASE_PATH, DEALERCORE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/dealer.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Storage: StorageConfig{
			DataDir:         "./data",
			CacheMaxAgeDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		ChangeFeed: ChangeFeedConfig{
			IntervalSeconds: 10,
			BatchSize:       100,
			TopicPrefix:     "dealercore",
			MQTT: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "dealercore",
				},
				QoS: 1,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
		},
		Telemetry: TelemetryConfig{
			IntervalSeconds: 60,
			InfluxDB: InfluxDBConfig{
				URL:           "http://localhost:8086",
				Org:           "dealercore",
				Bucket:        "dealercore",
				BatchSize:     100,
				FlushInterval: 10,
			},
		},
	}
}

// fillDerived sets the cache and documents directories under the data
// directory when they are not configured.
func (c *Config) fillDerived() {
	if c.Storage.CacheDir == "" && c.Storage.DataDir != "" {
		c.Storage.CacheDir = filepath.Join(c.Storage.DataDir, "cache")
	}
	if c.Storage.DocumentsDir == "" && c.Storage.DataDir != "" {
		c.Storage.DocumentsDir = filepath.Join(c.Storage.DataDir, "documents")
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DEALERCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DEALERCORE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DEALERCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("DEALERCORE_MQTT_HOST"); v != "" {
		cfg.ChangeFeed.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DEALERCORE_MQTT_USERNAME"); v != "" {
		cfg.ChangeFeed.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DEALERCORE_MQTT_PASSWORD"); v != "" {
		cfg.ChangeFeed.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("DEALERCORE_INFLUXDB_URL"); v != "" {
		cfg.Telemetry.InfluxDB.URL = v
	}
	if v := os.Getenv("DEALERCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.Telemetry.InfluxDB.Token = v
	}

	if v := os.Getenv("DEALERCORE_ALLOW_CLEAR_ALL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEALERCORE_ALLOW_CLEAR_ALL: %w", err)
		}
		cfg.Development.AllowClearAll = b
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}
	if c.Storage.CacheMaxAgeDays < 0 {
		errs = append(errs, "storage.cache_max_age_days must not be negative")
	}

	if c.ChangeFeed.Enabled {
		if c.ChangeFeed.IntervalSeconds < 1 {
			errs = append(errs, "changefeed.interval_seconds must be at least 1")
		}
		if c.ChangeFeed.BatchSize < 1 {
			errs = append(errs, "changefeed.batch_size must be at least 1")
		}
		if c.ChangeFeed.TopicPrefix == "" || strings.ContainsAny(c.ChangeFeed.TopicPrefix, "#+") {
			errs = append(errs, "changefeed.topic_prefix must be set and contain no wildcards")
		}
		if c.ChangeFeed.MQTT.Broker.Host == "" {
			errs = append(errs, "changefeed.mqtt.broker.host is required")
		}
		if p := c.ChangeFeed.MQTT.Broker.Port; p < 1 || p > 65535 {
			errs = append(errs, "changefeed.mqtt.broker.port must be between 1 and 65535")
		}
		if c.ChangeFeed.MQTT.QoS < 0 || c.ChangeFeed.MQTT.QoS > 2 {
			errs = append(errs, "changefeed.mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.IntervalSeconds < 1 {
			errs = append(errs, "telemetry.interval_seconds must be at least 1")
		}
		if c.Telemetry.InfluxDB.URL == "" {
			errs = append(errs, "telemetry.influxdb.url is required")
		}
		if c.Telemetry.InfluxDB.Bucket == "" {
			errs = append(errs, "telemetry.influxdb.bucket is required")
		}
		if c.Telemetry.InfluxDB.Token == "" {
			errs = append(errs, "telemetry.influxdb.token is required (set DEALERCORE_INFLUXDB_TOKEN environment variable)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ChangeFeedInterval returns the change feed polling interval.
func (c *Config) ChangeFeedInterval() time.Duration {
	return time.Duration(c.ChangeFeed.IntervalSeconds) * time.Second
}

// TelemetryInterval returns the telemetry reporting interval.
func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.Telemetry.IntervalSeconds) * time.Second
}

// CacheMaxAge returns how long cache files are kept. Zero disables cleanup.
func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Storage.CacheMaxAgeDays) * 24 * time.Hour
}
