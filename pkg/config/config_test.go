package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "a-jwt-secret-that-is-at-least-32-chars"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagramsd.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIPort != 8080 || cfg.GRPCPort != 9090 {
		t.Errorf("ports = %d/%d", cfg.APIPort, cfg.GRPCPort)
	}
	if cfg.InviteDefaultExpiry != 24*time.Hour {
		t.Errorf("InviteDefaultExpiry = %v", cfg.InviteDefaultExpiry)
	}
	if cfg.Store != StorePostgres {
		t.Errorf("Store = %q", cfg.Store)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, `
store = "memory"
jwt_secret = "`+testSecret+`"
api_port = 7000
jwt_expiry = "2h"

[log]
format = "text"
level = "debug"

[database]
max_open_conns = 3
`)
	t.Setenv("API_PORT", "7100")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q", cfg.Store)
	}
	if cfg.APIPort != 7100 {
		t.Errorf("APIPort = %d, want env value 7100", cfg.APIPort)
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("JWTExpiry = %v", cfg.JWTExpiry)
	}
	if cfg.Log.Format != "text" || cfg.Log.Level != "warn" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Database.MaxOpenConns != 3 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("Database = %+v", cfg.Database)
	}
}

func TestUnknownFileKey(t *testing.T) {
	path := writeFile(t, `jwt_secrt = "typo"`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "jwt_secrt") {
		t.Errorf("error = %v, want unknown key", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, "JWT_SECRET is required"},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, "at least 32"},
		{"bad store", func(c *Config) { c.Store = "sqlite" }, "STORE must be"},
		{"short invite expiry", func(c *Config) { c.InviteDefaultExpiry = time.Minute }, "INVITE_DEFAULT_EXPIRY"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.JWTSecret = testSecret
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want %q", err, tt.want)
			}
		})
	}

	cfg := Default()
	cfg.JWTSecret = testSecret
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestLoadWithDefaultsSkipsValidation(t *testing.T) {
	t.Setenv("JWT_SECRET", "unset-below")
	os.Unsetenv("JWT_SECRET")
	cfg := LoadWithDefaults()
	if len(cfg.JWTSecret) < 32 {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr())
	}
}
