// Package config provides the metaboxctl configuration and YAML loading with
// environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

// Validator is implemented by configuration types that can check themselves.
type Validator interface {
	Validate() error
}

// Load reads filename, expands environment variables and decodes it into
// target, then validates target when it implements Validator.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// LoadWithDefaults loads filename, or defaultFile when filename is missing.
func LoadWithDefaults[T any](filename, defaultFile string, target *T) error {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		if defaultFile != "" {
			return Load(defaultFile, target)
		}
		return fmt.Errorf("config file not found: %s", filename)
	}
	return Load(filename, target)
}

// Config is the metaboxctl configuration.
type Config struct {
	App         AppConfig             `yaml:"app"`
	HTTP        HTTPConfig            `yaml:"http"`
	SQLite      SQLiteConfig          `yaml:"sqlite"`
	Nonce       NonceConfig           `yaml:"nonce"`
	Definitions DefinitionsConfig     `yaml:"definitions"`
	Actor       ActorConfig           `yaml:"actor"`
	Types       map[string]TypeConfig `yaml:"types"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Nonce.Validate(); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	if err := c.Definitions.Validate(); err != nil {
		return fmt.Errorf("definitions: %w", err)
	}
	return c.Actor.Validate()
}

// Capabilities returns the per-type edit capability overrides.
func (c *Config) Capabilities() metabox.CapabilityMap {
	out := make(metabox.CapabilityMap, len(c.Types))
	for entityType, tc := range c.Types {
		if tc.EditCapability != "" {
			out[entityType] = tc.EditCapability
		}
	}
	return out
}

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns the listen address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the metadata database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NonceConfig configures anti-forgery tokens.
type NonceConfig struct {
	Secret   string        `yaml:"secret"`
	Lifetime time.Duration `yaml:"lifetime"`
}

// Validate validates the nonce configuration.
func (c *NonceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Secret, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.Lifetime, validation.Min(time.Minute)),
	)
}

// DefinitionsConfig points at the metabox definitions file.
type DefinitionsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the definitions configuration.
func (c *DefinitionsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ActorConfig describes the single local editor the CLI acts as.
type ActorConfig struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities"`
}

// Validate validates the actor configuration.
func (c *ActorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Capabilities, validation.Each(validation.Required)),
	)
}

// TypeConfig holds per entity type settings.
type TypeConfig struct {
	EditCapability string `yaml:"edit_capability"`
}

// NewDefault returns a Config with local development defaults. The nonce
// secret has no default and must be provided.
func NewDefault() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: slog.LevelInfo,
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
		SQLite: SQLiteConfig{
			Path: "./metaboxes.db",
		},
		Nonce: NonceConfig{
			Lifetime: 24 * time.Hour,
		},
		Definitions: DefinitionsConfig{
			Path: "./config/metaboxes.yaml",
		},
		Actor: ActorConfig{
			ID:           "editor",
			Capabilities: []string{"edit_post", "edit_page", "edit_attachment"},
		},
	}
}
