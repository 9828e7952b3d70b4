// Package config loads and validates service configuration. Values come
// from defaults, an optional YAML file, and environment overrides, in that
// order of precedence (lowest first).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/suibari/graph-be-more-blue/pkg/errors"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Build    BuildConfig    `yaml:"build"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" validate:"required"`
	Environment     string   `yaml:"environment" validate:"oneof=development production"`
	ReadTimeout     Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	EnableCORS      bool     `yaml:"enable_cors"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// UpstreamConfig configures the decentralized-network collaborators.
type UpstreamConfig struct {
	// ServiceURL is the authenticated API entrypoint (session, profiles,
	// handle resolution).
	ServiceURL string `yaml:"service_url" validate:"required,url"`
	// DirectoryURL is the identity directory used to locate each
	// repository's personal data server.
	DirectoryURL string `yaml:"directory_url" validate:"required,url"`
	// Identifier and Password are the service account credentials.
	Identifier string   `yaml:"identifier"`
	Password   string   `yaml:"password"`
	Timeout    Duration `yaml:"timeout" validate:"gt=0"`
}

// CacheConfig configures the snapshot caches.
type CacheConfig struct {
	TTL            Duration `yaml:"ttl" validate:"gt=0"`
	RefreshWorkers int      `yaml:"refresh_workers" validate:"gt=0"`
	RefreshQueue   int      `yaml:"refresh_queue" validate:"gt=0"`
}

// BuildConfig configures graph building.
type BuildConfig struct {
	FanOutLimit int `yaml:"fan_out_limit" validate:"gt=0"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			Environment:     "development",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			EnableCORS:      true,
			AllowedOrigins:  []string{"*"},
		},
		Upstream: UpstreamConfig{
			ServiceURL:   "https://bsky.social",
			DirectoryURL: "https://plc.directory",
			Timeout:      Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			TTL:            Duration(5 * time.Minute),
			RefreshWorkers: 2,
			RefreshQueue:   64,
		},
		Build: BuildConfig{
			FanOutLimit: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty), and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewConfigurationError("failed to read config file").WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigurationError("failed to parse config file").WithCause(err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints plus the credential requirement:
// authenticated fetching cannot work without a service account.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.NewConfigurationError("invalid configuration").WithCause(err)
	}
	if c.Upstream.Identifier == "" || c.Upstream.Password == "" {
		return errors.NewConfigurationError("upstream credentials are required (UPSTREAM_IDENTIFIER, UPSTREAM_PASSWORD)")
	}
	return nil
}

// IsDevelopment checks if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Address, "SERVER_ADDRESS")
	setString(&cfg.Server.Environment, "ENVIRONMENT")
	setString(&cfg.Upstream.ServiceURL, "UPSTREAM_SERVICE_URL")
	setString(&cfg.Upstream.DirectoryURL, "UPSTREAM_DIRECTORY_URL")
	setString(&cfg.Upstream.Identifier, "UPSTREAM_IDENTIFIER")
	setString(&cfg.Upstream.Password, "UPSTREAM_PASSWORD")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
	setInt(&cfg.Cache.RefreshWorkers, "CACHE_REFRESH_WORKERS")
	setInt(&cfg.Build.FanOutLimit, "BUILD_FAN_OUT_LIMIT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
