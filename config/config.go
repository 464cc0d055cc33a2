// Package config defines the application configuration: broker connection,
// ingestion settings, and the HTTP gateway. Files may be JSON or YAML;
// environment variables override file values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/telebridge/errors"
)

// Duration is a time.Duration that decodes from "5s" style strings (or raw
// nanosecond integers) in both JSON and YAML.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON encodes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration string or nanosecond number
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalYAML encodes the duration as a string
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes a duration string or nanosecond number
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case int:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration type %T", v)
	}
	return nil
}

// Config represents the complete application configuration
type Config struct {
	Broker  BrokerConfig  `json:"broker" yaml:"broker"`
	Bridge  BridgeConfig  `json:"bridge" yaml:"bridge"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// BrokerConfig defines the MQTT connection settings
type BrokerConfig struct {
	URL            string   `json:"url" yaml:"url"`
	ClientIDPrefix string   `json:"client_id_prefix,omitempty" yaml:"client_id_prefix,omitempty"`
	Username       string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string   `json:"password,omitempty" yaml:"password,omitempty"`
	QoS            int      `json:"qos,omitempty" yaml:"qos,omitempty"`
	ReconnectWait  Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	ConnectTimeout Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	KeepAlive      Duration `json:"keep_alive,omitempty" yaml:"keep_alive,omitempty"`
}

// BridgeConfig defines ingestion settings
type BridgeConfig struct {
	WindowCapacity  int `json:"window_capacity,omitempty" yaml:"window_capacity,omitempty"`
	ConnectAttempts int `json:"connect_attempts,omitempty" yaml:"connect_attempts,omitempty"`
}

// GatewayConfig defines the HTTP gateway settings
type GatewayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LoggingConfig defines structured logging settings
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:            "tcp://localhost:1883",
			ClientIDPrefix: "telebridge",
			QoS:            1,
			ReconnectWait:  Duration(5 * time.Second),
			ConnectTimeout: Duration(10 * time.Second),
			KeepAlive:      Duration(30 * time.Second),
		},
		Bridge: BridgeConfig{
			WindowCapacity:  1000,
			ConnectAttempts: 5,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"broker.url is required")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS))
	}
	if c.Bridge.WindowCapacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"bridge.window_capacity cannot be negative")
	}
	if c.Gateway.Enabled && c.Gateway.Addr == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"gateway.addr is required when the gateway is enabled")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"logging.level must be debug, info, warn or error")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"logging.format must be json or text")
	}
	return nil
}

// Loader handles configuration loading with env overrides
type Loader struct {
	envPrefix string
}

// NewLoader creates a configuration loader using the TELEBRIDGE env prefix
func NewLoader() *Loader {
	return &Loader{envPrefix: "TELEBRIDGE"}
}

// Load reads a config file on top of the defaults, applies environment
// overrides and validates. An empty path loads defaults plus env only.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := l.loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Load", "read "+path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.WrapInvalid(err, "Config", "Load", "parse YAML "+path)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return errors.WrapInvalid(err, "Config", "Load", "parse JSON "+path)
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Load",
			"unsupported config extension "+filepath.Ext(path))
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_BROKER_URL"); val != "" {
		cfg.Broker.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_BROKER_USERNAME"); val != "" {
		cfg.Broker.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_BROKER_PASSWORD"); val != "" {
		cfg.Broker.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_BROKER_QOS"); val != "" {
		if qos, err := strconv.Atoi(val); err == nil {
			cfg.Broker.QoS = qos
		}
	}
	if val := os.Getenv(l.envPrefix + "_WINDOW_CAPACITY"); val != "" {
		if capacity, err := strconv.Atoi(val); err == nil {
			cfg.Bridge.WindowCapacity = capacity
		}
	}
	if val := os.Getenv(l.envPrefix + "_GATEWAY_ADDR"); val != "" {
		cfg.Gateway.Addr = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
}
