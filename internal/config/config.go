// Package config provides configuration parsing and validation for the bot
// core.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nanoim/botcore/internal/auth"
)

// Config represents the complete bot configuration.
type Config struct {
	Bot     BotConfig     `yaml:"bot"`
	Network NetworkConfig `yaml:"network"`
	Sign    SignConfig    `yaml:"sign"`
	Highway HighwayConfig `yaml:"highway"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Custom carries user-defined keys the core does not interpret.
	Custom map[string]string `yaml:"custom"`
}

// BotConfig contains identity and logging settings.
type BotConfig struct {
	Protocol     string `yaml:"protocol"`      // Windows, MacOs, Linux, AndroidPhone, AndroidPad, AndroidWatch, None
	KeystorePath string `yaml:"keystore_path"` // JSON keystore location
	LogLevel     string `yaml:"log_level"`     // trace, debug, info, warning, error, critical
	LogFormat    string `yaml:"log_format"`    // text, json
	Verbose      bool   `yaml:"verbose"`
}

// NetworkConfig contains connection behavior settings.
type NetworkConfig struct {
	UseIPv6Network   bool     `yaml:"use_ipv6_network"`
	AutoReconnect    bool     `yaml:"auto_reconnect"`
	AutoReLogin      bool     `yaml:"auto_re_login"`
	GetOptimumServer bool     `yaml:"get_optimum_server"` // reserved, not wired at this layer
	Servers          []string `yaml:"servers"`            // overrides the built-in endpoints
}

// SignConfig selects the packet-signing provider.
type SignConfig struct {
	URL string `yaml:"url"` // empty disables HTTP signing
}

// HighwayConfig tunes the bulk-upload channel consumed by upper layers.
type HighwayConfig struct {
	ChunkSize  int `yaml:"chunk_size"`
	Concurrent int `yaml:"concurrent"`
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// maxChunkSize caps highway chunks at 1 MiB.
const maxChunkSize = 1 << 20

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Protocol:     "Linux",
			KeystorePath: "./keystore.json",
			LogLevel:     "info",
			LogFormat:    "text",
		},
		Network: NetworkConfig{
			UseIPv6Network:   false,
			AutoReconnect:    true,
			AutoReLogin:      true,
			GetOptimumServer: true,
		},
		Highway: HighwayConfig{
			ChunkSize:  maxChunkSize,
			Concurrent: 4,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		Custom: map[string]string{},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

var validLogLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warning": {}, "error": {}, "critical": {},
}

var validProtocols = map[string]struct{}{
	"Windows": {}, "MacOs": {}, "MacOS": {}, "Linux": {}, "": {},
	"AndroidPhone": {}, "AndroidPad": {}, "AndroidWatch": {}, "None": {},
}

// Validate checks the configuration for errors and clamps tunables into
// their legal ranges.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := validProtocols[c.Bot.Protocol]; !ok {
		errs = append(errs, fmt.Sprintf("invalid protocol: %s", c.Bot.Protocol))
	}
	if _, ok := validLogLevels[strings.ToLower(c.Bot.LogLevel)]; !ok {
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be trace, debug, info, warning, error, or critical)", c.Bot.LogLevel))
	}
	if f := strings.ToLower(c.Bot.LogFormat); f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("invalid log_format: %s (must be text or json)", c.Bot.LogFormat))
	}

	if c.Highway.ChunkSize <= 0 || c.Highway.ChunkSize > maxChunkSize {
		c.Highway.ChunkSize = maxChunkSize
	}
	if c.Highway.Concurrent <= 0 {
		errs = append(errs, fmt.Sprintf("highway.concurrent must be positive, got %d", c.Highway.Concurrent))
	}

	for _, server := range c.Network.Servers {
		if !strings.Contains(server, ":") {
			errs = append(errs, fmt.Sprintf("server %q missing port", server))
		}
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Protocol resolves the configured flavor.
func (c *Config) Protocol() auth.Protocol {
	return auth.ParseProtocol(c.Bot.Protocol)
}
