package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Capture CaptureConfig     `yaml:"capture"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	return c.SQLite.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the path to the SQLite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds the shared-secret bearer token. An empty token means the
// server generates one for the process lifetime; restarting without pinning
// the secret invalidates all existing clients.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// EnsureToken resolves the shared secret at startup: the configured value
// when present, otherwise a freshly generated one held in memory only.
func (c *AuthConfig) EnsureToken() string {
	c.Token = strings.TrimSpace(c.Token)
	if c.Token == "" {
		c.Token = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return c.Token
}

// CaptureConfig holds the optional capture inbox directory. When empty the
// inbox watcher is disabled.
type CaptureConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the capture inbox is configured.
func (c *CaptureConfig) Enabled() bool {
	return c.Path != ""
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 7745,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./den.db",
		},
	}
}

// LoadConfig merges a YAML file (with environment variable expansion) onto
// cfg and validates the result. A missing file leaves the defaults in place.
func LoadConfig(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg.Validate()
		}
		return fmt.Errorf("read config file %s: %w", filename, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
