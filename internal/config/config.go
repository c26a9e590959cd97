// ABOUTME: Configuration loading and parsing for the bridge.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bridge configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the two listen addresses. The agent endpoint accepts
// connections on all interfaces; the dashboard endpoint is loopback-only by
// default since the dashboard runs next to the bridge.
type ServerConfig struct {
	AgentAddr     string `yaml:"agent_addr"`
	DashboardAddr string `yaml:"dashboard_addr"`
}

// RelayConfig holds hand-off tuning.
type RelayConfig struct {
	// TurnTimeout bounds each hand-off wait (dashboard waiting for a reply,
	// agent waiting for a turn). Zero/unset means wait forever, which is the
	// default: a dashboard request sent while no agent is connected simply
	// blocks until an agent attaches and replies.
	TurnTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TurnTimeoutRaw string `yaml:"turn_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file is present.
// The defaults reproduce the original deployment: agent endpoint on port
// 12691 on all interfaces, dashboard endpoint on loopback port 12345, no
// hand-off timeout.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			AgentAddr:     ":12691",
			DashboardAddr: "127.0.0.1:12345",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Fields left unset fall back to the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.AgentAddr == "" {
		return fmt.Errorf("server.agent_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.AgentAddr); err != nil {
		return fmt.Errorf("server.agent_addr %q: %w", c.Server.AgentAddr, err)
	}

	if c.Server.DashboardAddr == "" {
		return fmt.Errorf("server.dashboard_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.DashboardAddr); err != nil {
		return fmt.Errorf("server.dashboard_addr %q: %w", c.Server.DashboardAddr, err)
	}

	if c.Relay.TurnTimeout < 0 {
		return fmt.Errorf("relay.turn_timeout must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Relay.TurnTimeoutRaw != "" {
		var err error
		cfg.Relay.TurnTimeout, err = time.ParseDuration(cfg.Relay.TurnTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing turn_timeout %q: %w", cfg.Relay.TurnTimeoutRaw, err)
		}
	}

	return nil
}
