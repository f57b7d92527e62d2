package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/loader"
)

// Config is the full application configuration, loaded from a JSON file with
// environment overrides applied on top.
type Config struct {
	Engine  EngineConfig  `json:"engine"`
	Rules   RulesConfig   `json:"rules"`
	NATS    NATSConfig    `json:"nats,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Logging LoggingConfig `json:"logging,omitempty"`
}

// EngineConfig configures the evaluation run.
type EngineConfig struct {
	// InitialFacts seed the state before the first scan.
	InitialFacts []string `json:"initial_facts,omitempty"`

	// StallPolicy decides what a stable no-progress state means:
	// "wait" keeps the run alive for injected facts, "stop" ends it.
	StallPolicy string `json:"stall_policy,omitempty"`
}

// StallPolicy values
const (
	StallWait = "wait"
	StallStop = "stop"
)

// RulesConfig points at rule definition sources.
type RulesConfig struct {
	Files  []string            `json:"files,omitempty"`
	Inline []loader.Definition `json:"inline,omitempty"`
}

// NATSConfig defines the optional NATS bridge.
type NATSConfig struct {
	Enabled       bool   `json:"enabled"`
	URL           string `json:"url,omitempty"`
	MaxReconnects int    `json:"max_reconnects,omitempty"`
	ReconnectWait string `json:"reconnect_wait,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	Token         string `json:"token,omitempty"`
	DeltaSubject  string `json:"delta_subject,omitempty"`
	StateSubject  string `json:"state_subject,omitempty"`
}

// ReconnectWaitDuration parses the reconnect wait, falling back to the
// default on empty or bad input.
func (n *NATSConfig) ReconnectWaitDuration() time.Duration {
	d, err := time.ParseDuration(n.ReconnectWait)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LoggingConfig defines log output.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // text or json
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			StallPolicy: StallWait,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: "2s",
			DeltaSubject:  "factflow.facts.delta",
			StateSubject:  "factflow.facts.state",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file onto the defaults and applies environment overrides.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("read config file %s: %w", path, err),
				"Config", "Load", "read file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: config file %s: %v", errors.ErrParsingFailed, path, err),
				"Config", "Load", "parse file")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments adjust connection details
// without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FACTFLOW_NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv("FACTFLOW_NATS_TOKEN"); v != "" {
		c.NATS.Token = v
	}
	if v := os.Getenv("FACTFLOW_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Metrics.Port = port
			c.Metrics.Enabled = true
		}
	}
	if v := os.Getenv("FACTFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Engine.StallPolicy {
	case "", StallWait, StallStop:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: stall_policy %q", errors.ErrInvalidConfig, c.Engine.StallPolicy),
			"Config", "Validate", "stall policy validation")
	}

	if len(c.Rules.Files) == 0 && len(c.Rules.Inline) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: no rule files or inline rules", errors.ErrNoRules),
			"Config", "Validate", "rules validation")
	}

	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: nats.url required when enabled", errors.ErrMissingConfig),
				"Config", "Validate", "NATS validation")
		}
		if c.NATS.DeltaSubject == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: nats.delta_subject required when enabled", errors.ErrMissingConfig),
				"Config", "Validate", "NATS validation")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: metrics.port %d", errors.ErrInvalidConfig, c.Metrics.Port),
			"Config", "Validate", "metrics validation")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: logging.level %q", errors.ErrInvalidConfig, c.Logging.Level),
			"Config", "Validate", "logging validation")
	}

	return nil
}
