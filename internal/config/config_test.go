package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nanoim/botcore/internal/auth"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Check essential defaults
	if cfg.Bot.Protocol != "Linux" {
		t.Errorf("Bot.Protocol = %s, want Linux", cfg.Bot.Protocol)
	}
	if cfg.Bot.KeystorePath != "./keystore.json" {
		t.Errorf("Bot.KeystorePath = %s, want ./keystore.json", cfg.Bot.KeystorePath)
	}
	if cfg.Bot.LogLevel != "info" {
		t.Errorf("Bot.LogLevel = %s, want info", cfg.Bot.LogLevel)
	}
	if !cfg.Network.AutoReconnect {
		t.Error("Network.AutoReconnect = false, want true")
	}
	if !cfg.Network.AutoReLogin {
		t.Error("Network.AutoReLogin = false, want true")
	}
	if cfg.Network.UseIPv6Network {
		t.Error("Network.UseIPv6Network = true, want false")
	}
	if cfg.Highway.ChunkSize != 1<<20 {
		t.Errorf("Highway.ChunkSize = %d, want %d", cfg.Highway.ChunkSize, 1<<20)
	}
	if cfg.Highway.Concurrent != 4 {
		t.Errorf("Highway.Concurrent = %d, want 4", cfg.Highway.Concurrent)
	}
	if cfg.Protocol() != auth.ProtocolLinux {
		t.Errorf("Protocol() = %v, want Linux", cfg.Protocol())
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
bot:
  protocol: "MacOs"
  keystore_path: "./state/keystore.json"
  log_level: "debug"
  log_format: "json"
  verbose: true

network:
  use_ipv6_network: true
  auto_reconnect: false
  servers:
    - "127.0.0.1:8080"

sign:
  url: "https://sign.example/api/sign"

highway:
  chunk_size: 524288
  concurrent: 8

metrics:
  enabled: true
  address: ":9100"

custom:
  region: "eu"
`

	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Protocol() != auth.ProtocolMacOS {
		t.Errorf("Protocol() = %v, want MacOs", cfg.Protocol())
	}
	if cfg.Bot.LogFormat != "json" {
		t.Errorf("Bot.LogFormat = %s, want json", cfg.Bot.LogFormat)
	}
	if !cfg.Bot.Verbose {
		t.Error("Bot.Verbose = false, want true")
	}
	if !cfg.Network.UseIPv6Network {
		t.Error("Network.UseIPv6Network = false, want true")
	}
	if cfg.Network.AutoReconnect {
		t.Error("Network.AutoReconnect = true, want false")
	}
	// Unset keys keep their defaults.
	if !cfg.Network.AutoReLogin {
		t.Error("Network.AutoReLogin = false, want default true")
	}
	if len(cfg.Network.Servers) != 1 || cfg.Network.Servers[0] != "127.0.0.1:8080" {
		t.Errorf("Network.Servers = %v, want [127.0.0.1:8080]", cfg.Network.Servers)
	}
	if cfg.Sign.URL != "https://sign.example/api/sign" {
		t.Errorf("Sign.URL = %s", cfg.Sign.URL)
	}
	if cfg.Highway.ChunkSize != 524288 {
		t.Errorf("Highway.ChunkSize = %d, want 524288", cfg.Highway.ChunkSize)
	}
	if cfg.Highway.Concurrent != 8 {
		t.Errorf("Highway.Concurrent = %d, want 8", cfg.Highway.Concurrent)
	}
	if cfg.Custom["region"] != "eu" {
		t.Errorf("Custom[region] = %s, want eu", cfg.Custom["region"])
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("bot: [not a mapping"))
	if err == nil {
		t.Fatal("Parse() succeeded on malformed YAML")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "bad protocol",
			mutate: func(c *Config) { c.Bot.Protocol = "Symbian" },
			want:   "invalid protocol",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Bot.LogLevel = "loud" },
			want:   "invalid log_level",
		},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.Bot.LogFormat = "xml" },
			want:   "invalid log_format",
		},
		{
			name:   "non-positive concurrent",
			mutate: func(c *Config) { c.Highway.Concurrent = 0 },
			want:   "highway.concurrent must be positive",
		},
		{
			name:   "server missing port",
			mutate: func(c *Config) { c.Network.Servers = []string{"msfwifi.3g.qq.com"} },
			want:   "missing port",
		},
		{
			name: "metrics without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Address = ""
			},
			want: "metrics.address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ClampsChunkSize(t *testing.T) {
	cfg := Default()
	cfg.Highway.ChunkSize = 16 << 20
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Highway.ChunkSize != 1<<20 {
		t.Errorf("ChunkSize = %d, want clamped to %d", cfg.Highway.ChunkSize, 1<<20)
	}

	cfg.Highway.ChunkSize = -1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Highway.ChunkSize != 1<<20 {
		t.Errorf("ChunkSize = %d, want clamped to %d", cfg.Highway.ChunkSize, 1<<20)
	}
}

func TestValidate_ProtocolNoneAccepted(t *testing.T) {
	cfg := Default()
	cfg.Bot.Protocol = "None"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Protocol() != auth.ProtocolNone {
		t.Errorf("Protocol() = %v, want None", cfg.Protocol())
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("BOTCORE_TEST_SIGN", "https://sign.internal/api")
	defer os.Unsetenv("BOTCORE_TEST_SIGN")

	yamlConfig := `
sign:
  url: "${BOTCORE_TEST_SIGN}"
bot:
  keystore_path: "${BOTCORE_TEST_MISSING:-./fallback.json}"
`
	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Sign.URL != "https://sign.internal/api" {
		t.Errorf("Sign.URL = %s, want expanded env value", cfg.Sign.URL)
	}
	if cfg.Bot.KeystorePath != "./fallback.json" {
		t.Errorf("Bot.KeystorePath = %s, want fallback default", cfg.Bot.KeystorePath)
	}
}

func TestExpandEnvVars_UnknownKept(t *testing.T) {
	out := expandEnvVars("url: ${BOTCORE_NO_SUCH_VAR}")
	if out != "url: ${BOTCORE_NO_SUCH_VAR}" {
		t.Errorf("expandEnvVars() = %q, want reference kept", out)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("bot:\n  log_level: warning\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bot.LogLevel != "warning" {
		t.Errorf("Bot.LogLevel = %s, want warning", cfg.Bot.LogLevel)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() succeeded on missing file")
	}
}
