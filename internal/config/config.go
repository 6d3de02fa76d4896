// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultBaseURL      = "http://localhost:8080"
	DefaultArtifactTTL  = 30
	DefaultStagingTTLh  = 2
	DefaultMaxFileBytes = 20 << 20
)

// Config is the root application configuration loaded from TOML.
// Secrets may be overridden from the environment (see applyEnv).
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Twilio   TwilioConfig   `toml:"twilio"`
	Store    StoreConfig    `toml:"store"`
	Access   AccessConfig   `toml:"access"`
	Download DownloadConfig `toml:"download"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listen address and the public base URL
// used to build download links the messaging provider can reach.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	BaseURL string `toml:"base_url"`
}

// TwilioConfig holds the messaging provider credentials, the WhatsApp
// sender identity, and an optional pre-registered content template SID.
type TwilioConfig struct {
	AccountSID  string `toml:"account_sid"`
	AuthToken   string `toml:"auth_token"`
	From        string `toml:"from"`
	TemplateSID string `toml:"template_sid"`
}

// StoreConfig holds the optional Redis URL and artifact TTL. When
// RedisURL is empty, or the dial fails, the in-process store is used.
type StoreConfig struct {
	RedisURL           string `toml:"redis_url"`
	ArtifactTTLMinutes int    `toml:"artifact_ttl_minutes"`
}

// AccessConfig holds the allow-list of WhatsApp user identifiers.
// An empty list allows everyone.
type AccessConfig struct {
	Allowed []string `toml:"allowed"`
}

// DownloadConfig controls the emitted spreadsheet format and password
// protection of download links.
type DownloadConfig struct {
	// Format is "csv" or "xlsx"; anything else falls back to csv.
	Format    string `toml:"format"`
	Passwords bool   `toml:"passwords"`
}

// ArtifactTTL returns the configured artifact TTL clamped to the
// 15 minute to 2 hour window the download flow depends on.
func (c StoreConfig) ArtifactTTL() time.Duration {
	minutes := c.ArtifactTTLMinutes
	if minutes < 15 {
		minutes = 15
	}
	if minutes > 120 {
		minutes = 120
	}
	return time.Duration(minutes) * time.Minute
}

// Load reads and parses the TOML config file at path, applies default
// values for missing fields, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:    DefaultHTTPAddr,
			BaseURL: DefaultBaseURL,
		},
		Store: StoreConfig{
			ArtifactTTLMinutes: DefaultArtifactTTL,
		},
		Download: DownloadConfig{
			Format: "csv",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides secrets and deployment-specific fields from the
// environment so the TOML file never has to contain credentials.
func (c *Config) applyEnv() {
	setIfPresent := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setIfPresent(&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setIfPresent(&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setIfPresent(&c.Twilio.From, "TWILIO_FROM")
	setIfPresent(&c.Twilio.TemplateSID, "TWILIO_TEMPLATE_SID")
	setIfPresent(&c.Store.RedisURL, "REDIS_URL")
	setIfPresent(&c.Server.BaseURL, "BASE_URL")
	setIfPresent(&c.Server.Addr, "HTTP_ADDR")

	if v := strings.TrimSpace(os.Getenv("ALLOWED_NUMBERS")); v != "" {
		parts := strings.Split(v, ",")
		allowed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				allowed = append(allowed, p)
			}
		}
		c.Access.Allowed = allowed
	}
}
