// Package config loads the gateway's configuration from YAML, layered with
// environment variable overrides, following the same load order the rest of
// the retrieval pack uses: defaults, then file, then environment, then
// validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the gateway.
type Config struct {
	Adapters  map[string]AdapterConfig `yaml:"adapters"`
	Connector ConnectorConfig          `yaml:"connector"`
	Logging   LoggingConfig            `yaml:"logging"`
	Metrics   MetricsConfig            `yaml:"metrics"`
}

// AdapterConfig holds the per-adapter timing knobs from spec.md §6: how long
// an LE RSSI reading stays fresh, how long an LE device may go unseen before
// it is evicted, and the artificial availability window granted to a
// Classic device after it is last observed.
type AdapterConfig struct {
	LEMaxAgeRSSI                       time.Duration `yaml:"le_max_age_rssi" default:"30s"`
	LEMaxUnavailabilityTime            time.Duration `yaml:"le_max_unavailability_time" default:"5m"`
	ClassicArtificialAvailabilityTimeout time.Duration `yaml:"classic_artificial_availability_timeout" default:"10m"`
}

// ConnectorConfig holds the server-connector's connection, timing and
// protocol knobs, mirroring GWServerConnector's setters.
type ConnectorConfig struct {
	Host                string        `yaml:"host" default:"localhost"`
	Port                int           `yaml:"port" default:"8888"`
	PollTimeout         time.Duration `yaml:"poll_timeout" default:"1s"`
	ReceiveTimeout      time.Duration `yaml:"receive_timeout" default:"30s"`
	SendTimeout         time.Duration `yaml:"send_timeout" default:"10s"`
	RetryConnectTimeout time.Duration `yaml:"retry_connect_timeout" default:"5s"`
	BusySleep           time.Duration `yaml:"busy_sleep" default:"100ms"`
	ResendTimeout       time.Duration `yaml:"resend_timeout" default:"15s"`
	MaxMessageSize      int           `yaml:"max_message_size" default:"8192"`
	MaxResendAttempts   int           `yaml:"max_resend_attempts" default:"3"`
	GatewayInfo         GatewayInfo   `yaml:"gateway_info"`
	TLS                 TLSConfig     `yaml:"tls"`
}

// GatewayInfo identifies this gateway to the upstream server during
// registration.
type GatewayInfo struct {
	ID      string `yaml:"id"`
	Variant string `yaml:"variant"`
	Version string `yaml:"version"`
}

// TLSConfig contains TLS settings for the connector's outbound WebSocket.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" default:"info"`
	Format string            `yaml:"format" default:"json"`
	Output string            `yaml:"output" default:"stdout"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig contains the gateway's self-observability settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" default:":9090"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The configuration loading order is:
//  1. Struct-tag defaults (github.com/mcuadros/go-defaults)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Validation
//
// Environment variables follow the pattern: BTGW_SECTION_KEY, e.g.
// BTGW_CONNECTOR_HOST, BTGW_LOGGING_LEVEL.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

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

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables follow the pattern: BTGW_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BTGW_CONNECTOR_HOST"); v != "" {
		cfg.Connector.Host = v
	}
	if v := os.Getenv("BTGW_CONNECTOR_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Connector.Port = port
		}
	}
	if v := os.Getenv("BTGW_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BTGW_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("BTGW_GATEWAY_ID"); v != "" {
		cfg.Connector.GatewayInfo.ID = v
	}
}

func parsePort(v string) (int, error) {
	var port int
	_, err := fmt.Sscanf(v, "%d", &port)
	return port, err
}

// Validate checks the configuration for internal consistency. It enforces
// spec.md §4.1's "all timing parameters must be positive" invariant and the
// connector's basic network reachability requirements.
func (c *Config) Validate() error {
	var errs []string

	if c.Connector.Host == "" {
		errs = append(errs, "connector.host is required")
	}
	if c.Connector.Port < 1 || c.Connector.Port > 65535 {
		errs = append(errs, "connector.port must be between 1 and 65535")
	}
	if c.Connector.MaxMessageSize <= 0 {
		errs = append(errs, "connector.max_message_size must be positive")
	}

	for name, adapter := range c.Adapters {
		if adapter.LEMaxAgeRSSI <= 0 {
			errs = append(errs, fmt.Sprintf("adapters.%s.le_max_age_rssi must be positive", name))
		}
		if adapter.LEMaxUnavailabilityTime <= 0 {
			errs = append(errs, fmt.Sprintf("adapters.%s.le_max_unavailability_time must be positive", name))
		}
		if adapter.ClassicArtificialAvailabilityTimeout <= 0 {
			errs = append(errs, fmt.Sprintf("adapters.%s.classic_artificial_availability_timeout must be positive", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
