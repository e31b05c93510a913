// ABOUTME: Configuration loading and parsing for the heddle coordinator
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete coordinator configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	NATS        NATSConfig        `yaml:"nats"`
	Standalone  StandaloneConfig  `yaml:"standalone"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// NATSConfig holds the connection settings for clustered deployments.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// StandaloneConfig selects single-node mode: registry state in SQLite and
// an in-process durable log instead of a NATS cluster.
type StandaloneConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// CoordinatorConfig holds routing and lifecycle policy.
type CoordinatorConfig struct {
	ProjectID      string `yaml:"project_id"`
	MaxDeliver     int    `yaml:"max_deliver"`
	MailboxMaxMsgs int64  `yaml:"mailbox_max_msgs"`
	AutoSpinUp     bool   `yaml:"auto_spinup"`

	IdleTimeout      time.Duration `yaml:"-"`
	IdleScanInterval time.Duration `yaml:"-"`
	ShutdownGrace    time.Duration `yaml:"-"`
	SpinUpCooldown   time.Duration `yaml:"-"`
	ProbeTimeout     time.Duration `yaml:"-"`
	MailboxMaxAge    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IdleTimeoutRaw      string `yaml:"idle_timeout"`
	IdleScanIntervalRaw string `yaml:"idle_scan_interval"`
	ShutdownGraceRaw    string `yaml:"shutdown_grace"`
	SpinUpCooldownRaw   string `yaml:"spinup_cooldown"`
	ProbeTimeoutRaw     string `yaml:"probe_timeout"`
	MailboxMaxAgeRaw    string `yaml:"mailbox_max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults applied to fields the file leaves unset.
const (
	DefaultHTTPAddr         = "localhost:3000"
	DefaultProjectID        = "default"
	DefaultMaxDeliver       = 3
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultIdleScanInterval = 30 * time.Second
	DefaultShutdownGrace    = time.Minute
	DefaultSpinUpCooldown   = 30 * time.Second
	DefaultProbeTimeout     = 10 * time.Second
	DefaultMailboxMaxAge    = 24 * time.Hour
	DefaultMailboxMaxMsgs   = 1000
)

// Default returns a config with every policy knob at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Coordinator.ProjectID == "" {
		c.Coordinator.ProjectID = DefaultProjectID
	}
	if c.Coordinator.MaxDeliver == 0 {
		c.Coordinator.MaxDeliver = DefaultMaxDeliver
	}
	if c.Coordinator.IdleTimeout == 0 {
		c.Coordinator.IdleTimeout = DefaultIdleTimeout
	}
	if c.Coordinator.IdleScanInterval == 0 {
		c.Coordinator.IdleScanInterval = DefaultIdleScanInterval
	}
	if c.Coordinator.ShutdownGrace == 0 {
		c.Coordinator.ShutdownGrace = DefaultShutdownGrace
	}
	if c.Coordinator.SpinUpCooldown == 0 {
		c.Coordinator.SpinUpCooldown = DefaultSpinUpCooldown
	}
	if c.Coordinator.ProbeTimeout == 0 {
		c.Coordinator.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Coordinator.MailboxMaxAge == 0 {
		c.Coordinator.MailboxMaxAge = DefaultMailboxMaxAge
	}
	if c.Coordinator.MailboxMaxMsgs == 0 {
		c.Coordinator.MailboxMaxMsgs = DefaultMailboxMaxMsgs
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and
// consistent. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Standalone.Enabled {
		if c.Standalone.DatabasePath == "" {
			return fmt.Errorf("standalone.database_path is required in standalone mode")
		}
		if c.NATS.URL != "" {
			return fmt.Errorf("nats.url and standalone mode are mutually exclusive")
		}
		return nil
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required (or enable standalone mode)")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"idle_timeout", cfg.Coordinator.IdleTimeoutRaw, &cfg.Coordinator.IdleTimeout},
		{"idle_scan_interval", cfg.Coordinator.IdleScanIntervalRaw, &cfg.Coordinator.IdleScanInterval},
		{"shutdown_grace", cfg.Coordinator.ShutdownGraceRaw, &cfg.Coordinator.ShutdownGrace},
		{"spinup_cooldown", cfg.Coordinator.SpinUpCooldownRaw, &cfg.Coordinator.SpinUpCooldown},
		{"probe_timeout", cfg.Coordinator.ProbeTimeoutRaw, &cfg.Coordinator.ProbeTimeout},
		{"mailbox_max_age", cfg.Coordinator.MailboxMaxAgeRaw, &cfg.Coordinator.MailboxMaxAge},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
