// Package config loads and validates the plannersync YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Bounds and defaults for the sync interval. Background work on mobile
// platforms cannot run more often than every 15 minutes.
const (
	DefaultSyncInterval = 15 * time.Minute
	MinSyncInterval     = 15 * time.Minute
	MaxSyncInterval     = 24 * time.Hour

	DefaultRequestTimeout = 10 * time.Second
	DefaultProbeTimeout   = 800 * time.Millisecond
	DefaultHealthPath     = "/api/health"

	DefaultInitialBackoff = 30 * time.Second
	DefaultMaxBackoff     = 5 * time.Hour
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// ServerURL is the base URL of the planner API (e.g. "https://planner.example.com").
	ServerURL string `yaml:"server_url"`

	// DBPath overrides the local database location.
	// Defaults to ~/.local/share/plannersync/planner.db.
	DBPath string `yaml:"db_path,omitempty"`

	// SessionPath overrides where the signed-in session is kept.
	// Defaults to ~/.config/plannersync/session.yaml.
	SessionPath string `yaml:"session_path,omitempty"`

	// SyncInterval controls how often the background sync pass runs.
	// Minimum 15m, maximum 24h. Defaults to 15m if unset.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// RequestTimeout bounds every data call to the server. Defaults to 10s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ProbeTimeout bounds the reachability probe. It must be shorter than
	// RequestTimeout. Defaults to 800ms.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// HealthPath is the liveness endpoint probed before a sync. Defaults to /api/health.
	HealthPath string `yaml:"health_path"`

	// Backoff controls how failed sync passes are retried.
	Backoff BackoffConfig `yaml:"backoff"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// BackoffConfig holds the exponential retry bounds for failed passes.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "plannersync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, e.g. Authorization: "Bearer <token>".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/plannersync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "plannersync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write validates c and saves it to path, creating parent directories.
func (c *Config) Write(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// Validate fills defaults and checks that every field is well-formed. Load
// and Write call it.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	u, err := url.ParseRequestURI(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q must be a valid http or https URL", c.ServerURL)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.SyncInterval < MinSyncInterval {
		return fmt.Errorf("sync_interval %v is too short (minimum %v)", c.SyncInterval, MinSyncInterval)
	}
	if c.SyncInterval > MaxSyncInterval {
		return fmt.Errorf("sync_interval %v is too long (maximum %v)", c.SyncInterval, MaxSyncInterval)
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.RequestTimeout < 0 || c.ProbeTimeout < 0 {
		return fmt.Errorf("request_timeout and probe_timeout must be positive")
	}
	if c.ProbeTimeout >= c.RequestTimeout {
		return fmt.Errorf("probe_timeout %v must be shorter than request_timeout %v", c.ProbeTimeout, c.RequestTimeout)
	}

	if c.HealthPath == "" {
		c.HealthPath = DefaultHealthPath
	}
	if !strings.HasPrefix(c.HealthPath, "/") {
		return fmt.Errorf("health_path %q must start with /", c.HealthPath)
	}

	if c.Backoff.Initial == 0 {
		c.Backoff.Initial = DefaultInitialBackoff
	}
	if c.Backoff.Max == 0 {
		c.Backoff.Max = DefaultMaxBackoff
	}
	if c.Backoff.Initial < 0 || c.Backoff.Max < c.Backoff.Initial {
		return fmt.Errorf("backoff.max %v must not be shorter than backoff.initial %v", c.Backoff.Max, c.Backoff.Initial)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
