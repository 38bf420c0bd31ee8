package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the SHSF hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	BLE       BLEConfig       `yaml:"ble"`
	Relay     RelayConfig     `yaml:"relay"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Shell     ShellConfig     `yaml:"shell"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Power     PowerConfig     `yaml:"power"`
}

// HubConfig contains the identity of this hub on the MQTT network.
type HubConfig struct {
	// Namespace is the first topic segment for every hub topic (e.g. "shsf").
	Namespace string `yaml:"namespace"`

	// LocalSender is the reserved sender tag for commands issued from the shell.
	LocalSender string `yaml:"local_sender"`

	// Device is the topic segment of the railroad device whose RSSI is reported.
	Device string `yaml:"device"`

	// Name is a human-readable name for logs and the window title.
	Name string `yaml:"name"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// BLEConfig describes the single peripheral the hub talks to.
type BLEConfig struct {
	// RegistryFile is the device registry listing known peripherals.
	RegistryFile string `yaml:"registry_file"`

	// Node selects the peripheral by its NODE number in the registry.
	Node int `yaml:"node"`

	// CharacteristicIndex selects the serial characteristic among the
	// LECHAR entries of the node (0 is the first).
	CharacteristicIndex int `yaml:"characteristic_index"`

	// ConnectTimeout bounds radio enable, connect and discovery (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// RelayConfig tunes the command relay.
type RelayConfig struct {
	QueueSize       int     `yaml:"queue_size"`
	PollIntervalMS  int     `yaml:"poll_interval_ms"`
	AckWindowMS     int     `yaml:"ack_window_ms"`
	SubmitTimeoutMS int     `yaml:"submit_timeout_ms"`
	RateLimit       float64 `yaml:"rate_limit"` // remote commands per second per sender, 0 disables
	RateBurst       int     `yaml:"rate_burst"`
}

// HeartbeatConfig controls the liveness publish.
type HeartbeatConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// TelemetryConfig controls signal quality handling.
type TelemetryConfig struct {
	// WarnQuality is the quality at or below which a warning is logged.
	WarnQuality int `yaml:"warn_quality"`
}

// ShellConfig configures the desktop status window.
type ShellConfig struct {
	Enabled bool           `yaml:"enabled"`
	Title   string         `yaml:"title"`
	Width   int            `yaml:"width"`
	Height  int            `yaml:"height"`
	LogSize int            `yaml:"log_size"`
	Buttons []ButtonConfig `yaml:"buttons"`
}

// ButtonConfig is a preset command button.
type ButtonConfig struct {
	Label   string `yaml:"label"`
	Command string `yaml:"command"`
}

// APIConfig contains local HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// PanelDir serves the status page from disk instead of the embedded copy.
	PanelDir string `yaml:"panel_dir"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DatabaseConfig contains SQLite exchange journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PowerConfig controls the host shutdown action.
type PowerConfig struct {
	// Enabled shows the host shutdown button in the shell.
	Enabled bool `yaml:"enabled"`

	// Method is "logind" (org.freedesktop.login1) or "systemd" (poweroff.target).
	Method string `yaml:"method"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SHSF_SECTION_KEY
// For example: SHSF_MQTT_HOST, SHSF_BLE_NODE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config matching the stock hub deployment.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			Namespace:   "shsf",
			LocalSender: "hub",
			Device:      "r4",
			Name:        "SHSF - Pi Hub",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "shsf-hub",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		BLE: BLEConfig{
			RegistryFile:        "devices.txt",
			Node:                7,
			CharacteristicIndex: 0,
			ConnectTimeout:      30,
		},
		Relay: RelayConfig{
			QueueSize:       64,
			PollIntervalMS:  100,
			AckWindowMS:     100,
			SubmitTimeoutMS: 1000,
			RateLimit:       5,
			RateBurst:       10,
		},
		Heartbeat: HeartbeatConfig{
			IntervalSeconds: 10,
		},
		Telemetry: TelemetryConfig{
			WarnQuality: 75,
		},
		Shell: ShellConfig{
			Enabled: true,
			Title:   "SHSF - Pi Hub",
			Width:   400,
			Height:  280,
			LogSize: 200,
			Buttons: []ButtonConfig{
				{Label: "Horn", Command: "h"},
				{Label: "All Blocks ON", Command: "ba o"},
			},
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8088,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Enabled:     false,
			Path:        "./data/shsf-hub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Power: PowerConfig{
			Enabled: true,
			Method:  "logind",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SHSF_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Hub
	if v := os.Getenv("SHSF_HUB_NAMESPACE"); v != "" {
		cfg.Hub.Namespace = v
	}

	// MQTT
	if v := os.Getenv("SHSF_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SHSF_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("SHSF_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SHSF_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// BLE
	if v := os.Getenv("SHSF_BLE_REGISTRY_FILE"); v != "" {
		cfg.BLE.RegistryFile = v
	}
	if v := os.Getenv("SHSF_BLE_NODE"); v != "" {
		if node, err := strconv.Atoi(v); err == nil {
			cfg.BLE.Node = node
		}
	}

	// Shell
	if v := os.Getenv("SHSF_SHELL_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Shell.Enabled = enabled
		}
	}

	// InfluxDB
	if v := os.Getenv("SHSF_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.Namespace == "" || strings.ContainsAny(c.Hub.Namespace, "/+#") {
		errs = append(errs, "hub.namespace is required and must be a single topic segment")
	}
	if c.Hub.LocalSender == "" || strings.ContainsAny(c.Hub.LocalSender, "/+#") {
		errs = append(errs, "hub.local_sender is required and must be a single topic segment")
	}
	if c.Hub.Device == "" || strings.ContainsAny(c.Hub.Device, "/+#") {
		errs = append(errs, "hub.device is required and must be a single topic segment")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	if c.BLE.RegistryFile == "" {
		errs = append(errs, "ble.registry_file is required")
	}
	if c.BLE.Node < 1 {
		errs = append(errs, "ble.node must be positive")
	}
	if c.BLE.CharacteristicIndex < 0 {
		errs = append(errs, "ble.characteristic_index must not be negative")
	}

	if c.Relay.QueueSize < 1 {
		errs = append(errs, "relay.queue_size must be at least 1")
	}
	if c.Relay.PollIntervalMS < 1 {
		errs = append(errs, "relay.poll_interval_ms must be positive")
	}
	if c.Relay.RateLimit < 0 {
		errs = append(errs, "relay.rate_limit must not be negative")
	}

	if c.Heartbeat.IntervalSeconds < 1 {
		errs = append(errs, "heartbeat.interval_seconds must be positive")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch c.Power.Method {
	case "logind", "systemd":
	default:
		errs = append(errs, "power.method must be logind or systemd")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// PollInterval returns the relay poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Relay.PollIntervalMS) * time.Millisecond
}

// AckWindow returns the relay acknowledgment window as a Duration.
func (c *Config) AckWindow() time.Duration {
	return time.Duration(c.Relay.AckWindowMS) * time.Millisecond
}

// SubmitTimeout returns the maximum time a submit may wait for queue space.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Relay.SubmitTimeoutMS) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat period as a Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.IntervalSeconds) * time.Second
}

// ConnectTimeout returns the BLE connect timeout as a Duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.BLE.ConnectTimeout) * time.Second
}
