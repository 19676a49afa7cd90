package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "127.0.0.1"
  port: 9090
  public_url: "https://bots.example.com/"
database:
  host: "db.internal"
  port: "5433"
  user: "app"
  password: "s3cret"
  name: "botfleet"
  sslmode: "require"
  max_connections: 20
vault:
  key: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
flow:
  ttl_seconds: 3600
rate_limit:
  interval_ms: 250
  exclude_updates: ["Callback"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Listen != "127.0.0.1" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.PublicURL != "https://bots.example.com" {
		t.Fatalf("public_url not trimmed: %q", cfg.Server.PublicURL)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != "5433" ||
		cfg.Database.Name != "botfleet" || cfg.Database.MaxConnections != 20 {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if got := cfg.FlowTTL().Seconds(); got != 3600 {
		t.Fatalf("flow ttl = %v", got)
	}
	if got := cfg.RateLimit.Interval().Milliseconds(); got != 250 {
		t.Fatalf("rate limit interval = %v", got)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != "callback" {
		t.Fatalf("exclude not normalized: %v", cfg.RateLimit.ExcludeUpdates)
	}
	// Unset sections pick up defaults.
	if cfg.Broadcast.MessagesPerSecond != 25 || cfg.Broadcast.ProgressEvery != 10 {
		t.Fatalf("broadcast defaults = %+v", cfg.Broadcast)
	}
}

func TestNormalizeRejectsMissingRequired(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"no public url", func(c *Config) { c.Server.PublicURL = "" }},
		{"bad public url scheme", func(c *Config) { c.Server.PublicURL = "ftp://x" }},
		{"no vault key", func(c *Config) { c.Vault.Key = "" }},
		{"bad exclude kind", func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"inline"} }},
		{"negative flow ttl", func(c *Config) { c.Flow.TTLSeconds = -1 }},
	}
	for _, tc := range cases {
		cfg := &Config{}
		cfg.Server.PublicURL = "https://bots.example.com"
		cfg.Vault.Key = "aa"
		tc.mut(cfg)
		if err := Normalize(cfg); err == nil {
			t.Errorf("%s: Normalize accepted invalid config", tc.name)
		}
	}
}
