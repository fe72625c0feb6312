// Package config loads and validates the vaultwatch.yaml runtime
// configuration.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	vwerrors "github.com/vaultwatch/vaultwatch/internal/errors"
	"github.com/vaultwatch/vaultwatch/internal/logging"
)

// Config is the vaultwatch.yaml structure.
type Config struct {
	// ListenAddr is the HTTP API listen address.
	ListenAddr string `yaml:"listen_addr"`

	Store         StoreConfig     `yaml:"store"`
	Azure         AzureConfig     `yaml:"azure"`
	Subscriptions []string        `yaml:"subscriptions,omitempty"` // allow-list; empty = all
	SMTP          SMTPConfig      `yaml:"smtp"`
	Sync          SyncConfig      `yaml:"sync"`
	Retry         RetryConfig     `yaml:"retry"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
}

// StoreConfig locates the inventory store.
type StoreConfig struct {
	// Path is the BadgerDB directory. Empty opens an in-memory store.
	Path string `yaml:"path"`
}

// AzureConfig holds Azure authentication settings.
type AzureConfig struct {
	TenantID           string `yaml:"tenant_id,omitempty"`
	ClientID           string `yaml:"client_id,omitempty"`
	ClientSecret       string `yaml:"client_secret,omitempty"`
	UseManagedIdentity bool   `yaml:"use_managed_identity"`
	UserAssignedID     string `yaml:"user_assigned_identity_id,omitempty"`
}

// SMTPConfig holds the notification transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	From     string `yaml:"from"`
}

// SyncConfig tunes the sync pipeline.
type SyncConfig struct {
	// Concurrency bounds parallel per-vault fetches.
	Concurrency int `yaml:"concurrency"`
}

// RetryConfig bounds retries of external calls.
type RetryConfig struct {
	Attempts    int `yaml:"attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// SchedulerConfig configures the optional periodic trigger. Disabled by
// default; pipelines then run only on explicit API or CLI invocation.
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SyncSchedule  string `yaml:"sync_schedule"`
	AlertSchedule string `yaml:"alert_schedule"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Store:      StoreConfig{Path: "data/inventory"},
		Azure:      AzureConfig{UseManagedIdentity: true},
		SMTP:       SMTPConfig{Port: 587},
		Sync:       SyncConfig{Concurrency: 4},
		Retry:      RetryConfig{Attempts: 3, BaseDelayMs: 500, MaxDelayMs: 5000},
		Metrics:    MetricsConfig{Enabled: false, Port: 9090, Path: "/metrics"},
		Scheduler: SchedulerConfig{
			Enabled:       false,
			SyncSchedule:  "0 */6 * * *",
			AlertSchedule: "0 8 * * *",
		},
	}
}

// Load reads and parses the configuration file, applying defaults for
// omitted fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vwerrors.ConfigError{
				Field:      "path",
				Value:      path,
				Message:    "configuration file not found",
				Suggestion: "Create a vaultwatch.yaml or pass --config with the right path",
			}
		}
		return nil, vwerrors.ConfigError{
			Field:   "path",
			Value:   path,
			Message: err.Error(),
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, vwerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for fatal errors before any pipeline
// work starts.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return vwerrors.ConfigError{
			Field:      "listen_addr",
			Message:    "listen address is required",
			Suggestion: "Set listen_addr, e.g. \":8080\"",
		}
	}
	if !c.Azure.UseManagedIdentity && c.Azure.ClientSecret != "" {
		if c.Azure.TenantID == "" || c.Azure.ClientID == "" {
			return vwerrors.ConfigError{
				Field:      "azure.client_secret",
				Value:      logging.Secret(c.Azure.ClientSecret),
				Message:    "client secret authentication needs tenant_id and client_id",
				Suggestion: "Set azure.tenant_id and azure.client_id, or switch to use_managed_identity: true",
			}
		}
	}
	if c.Sync.Concurrency < 1 {
		return vwerrors.ConfigError{
			Field:      "sync.concurrency",
			Value:      c.Sync.Concurrency,
			Message:    "concurrency must be at least 1",
			Suggestion: "Remove the field to use the default of 4",
		}
	}
	if c.Retry.Attempts < 1 {
		return vwerrors.ConfigError{
			Field:      "retry.attempts",
			Value:      c.Retry.Attempts,
			Message:    "retry attempts must be at least 1",
			Suggestion: "Set retry.attempts to 1 to disable retries",
		}
	}
	return nil
}

// RetryBaseDelay returns the configured base backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the configured backoff cap.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}
