package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ServerConfig specifies the webhook HTTP server settings shared by all hosted bots.
type ServerConfig struct {
	Listen string `yaml:"listen" envconfig:"SERVER_LISTEN"`
	Port   int    `yaml:"port" envconfig:"SERVER_PORT"`
	// PublicURL is the externally reachable base URL registered with the
	// platform when a bot webhook is installed, e.g. https://bots.example.com
	PublicURL string `yaml:"public_url" envconfig:"SERVER_PUBLIC_URL"`
}

// DatabaseConfig holds the Postgres connection settings. It is declared here
// rather than reusing core/database's Config so this package stays a leaf;
// bootstrap converts between the two.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// VaultConfig holds credential encryption settings.
type VaultConfig struct {
	// Key is the hex-encoded 32-byte AES key used to seal bot tokens at rest.
	Key string `yaml:"key" envconfig:"VAULT_KEY"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for inbound per-user rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// BroadcastConfig tunes the broadcast delivery engine.
type BroadcastConfig struct {
	// MessagesPerSecond caps outbound sends during a broadcast run; 0 -> default 25.
	MessagesPerSecond int `yaml:"messages_per_second" envconfig:"BROADCAST_MESSAGES_PER_SECOND"`
	// ProgressEvery controls how often the progress callback fires, in recipients; 0 -> default 10.
	ProgressEvery int `yaml:"progress_every" envconfig:"BROADCAST_PROGRESS_EVERY"`
}

// FlowConfig tunes the conversation state store.
type FlowConfig struct {
	// TTLSeconds expires abandoned wizard state; 0 means state never expires.
	TTLSeconds int `yaml:"ttl_seconds" envconfig:"FLOW_TTL_SECONDS"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Vault     VaultConfig     `yaml:"vault"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Flow      FlowConfig      `yaml:"flow"`
}

// Interval returns the configured per-user throttle window.
func (c RateLimitConfig) Interval() time.Duration {
	if c.IntervalMS <= 0 {
		return 0
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// FlowTTL returns the configured wizard state lifetime as a duration.
func (c *Config) FlowTTL() time.Duration {
	if c == nil || c.Flow.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Flow.TTLSeconds) * time.Second
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = "0.0.0.0"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	cfg.Server.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.Server.PublicURL), "/")
	if cfg.Server.PublicURL == "" {
		return fmt.Errorf("server.public_url is required")
	}
	if !strings.HasPrefix(cfg.Server.PublicURL, "https://") && !strings.HasPrefix(cfg.Server.PublicURL, "http://") {
		return fmt.Errorf("server.public_url must start with http:// or https://")
	}

	if strings.TrimSpace(cfg.Vault.Key) == "" {
		return fmt.Errorf("vault.key is required")
	}

	if cfg.Broadcast.MessagesPerSecond < 0 {
		return fmt.Errorf("broadcast.messages_per_second must be >= 0")
	}
	if cfg.Broadcast.MessagesPerSecond == 0 {
		cfg.Broadcast.MessagesPerSecond = 25
	}
	if cfg.Broadcast.ProgressEvery < 0 {
		return fmt.Errorf("broadcast.progress_every must be >= 0")
	}
	if cfg.Broadcast.ProgressEvery == 0 {
		cfg.Broadcast.ProgressEvery = 10
	}

	if cfg.Flow.TTLSeconds < 0 {
		return fmt.Errorf("flow.ttl_seconds must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
