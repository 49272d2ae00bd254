// Package config loads server configuration from an optional TOML file and
// environment variables. Environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the diagrams server.
type Config struct {
	Store       string         `env:"STORE" toml:"store"`
	DatabaseDSN string         `env:"DATABASE_URL" toml:"database_url"`
	Database    DatabaseConfig `toml:"database"`

	// Authentication
	JWTSecret string        `env:"JWT_SECRET" toml:"jwt_secret"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" toml:"jwt_expiry"`

	InviteDefaultExpiry time.Duration `env:"INVITE_DEFAULT_EXPIRY" toml:"invite_default_expiry"`

	// Server configuration
	APIHost  string `env:"API_HOST" toml:"api_host"`
	APIPort  int    `env:"API_PORT" toml:"api_port"`
	GRPCPort int    `env:"GRPC_PORT" toml:"grpc_port"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" toml:"shutdown_timeout"`

	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// DatabaseConfig tunes the PostgreSQL connection pool.
type DatabaseConfig struct {
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" toml:"max_open_conns"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" toml:"conn_max_idle_time"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" toml:"level"`
	Format string `env:"LOG_FORMAT" toml:"format"`
}

// TelemetryConfig configures OpenTelemetry tracing. An empty endpoint
// disables tracing.
type TelemetryConfig struct {
	Endpoint    string `env:"OTEL_ENDPOINT" toml:"endpoint"`
	ServiceName string `env:"OTEL_SERVICE_NAME" toml:"service_name"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Store:       StorePostgres,
		DatabaseDSN: "postgres://localhost:5432/diagrams?sslmode=disable",
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: time.Minute,
		},
		JWTExpiry:           24 * time.Hour,
		InviteDefaultExpiry: 24 * time.Hour,
		APIHost:             "0.0.0.0",
		APIPort:             8080,
		GRPCPort:            9090,
		ShutdownTimeout:     30 * time.Second,
		Log:                 LogConfig{Level: "info", Format: "json"},
		Telemetry:           TelemetryConfig{ServiceName: "diagramsd"},
	}
}

// Load reads the TOML file at path (or $CONFIG_FILE when path is empty, or
// nothing when both are empty), applies environment variables and validates
// the result.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}
	if c.JWTExpiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.InviteDefaultExpiry < time.Hour {
		errs = append(errs, errors.New("INVITE_DEFAULT_EXPIRY must be at least 1h"))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg := Default()
	cfg.JWTSecret = "development-secret-key-min-32-chars"
	_ = env.Parse(cfg)
	return cfg
}

// HTTPAddr returns the listen address of the HTTP API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// GRPCAddr returns the listen address of the gRPC server.
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.GRPCPort)
}
