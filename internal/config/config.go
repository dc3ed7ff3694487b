// Copyright 2026 The Kitchen Konnect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names an optional YAML file applied on top of the defaults.
const EnvConfigFile = "KKAUTH_CONFIG"

// MinSecretLength is the shortest signing secret accepted for the jwt backend.
const MinSecretLength = 32

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Store         StoreConfig         `yaml:"store"`
	Token         TokenConfig         `yaml:"token"`
	Cookie        CookieConfig        `yaml:"cookie"`
	Observability ObservabilityConfig `yaml:"observability"`
	Security      SecurityConfig      `yaml:"security"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Bootstrap     BootstrapConfig     `yaml:"bootstrap"`
}

// RateLimitConfig holds rate limiting configuration for the auth endpoints
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds database configuration. URL wins over the discrete fields.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres, memory
}

// TokenConfig holds credential issuance settings.
type TokenConfig struct {
	Backend    string        `yaml:"backend"` // jwt, opaque
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

// CookieConfig holds the refresh and CSRF cookie settings.
type CookieConfig struct {
	Name           string `yaml:"name"`
	Domain         string `yaml:"domain"`
	Path           string `yaml:"path"`
	LocalDev       bool   `yaml:"local_dev"`
	CSRFCookieName string `yaml:"csrf_cookie_name"`
	CSRFHeaderName string `yaml:"csrf_header_name"`
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	OTELEnabled    bool   `yaml:"otel_enabled"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Argon2Memory       uint32        `yaml:"argon2_memory"`
	Argon2Iterations   uint32        `yaml:"argon2_iterations"`
	Argon2Parallelism  uint8         `yaml:"argon2_parallelism"`
	Argon2SaltLength   uint32        `yaml:"argon2_salt_length"`
	Argon2KeyLength    uint32        `yaml:"argon2_key_length"`
	LockoutMaxAttempts int           `yaml:"lockout_max_attempts"`
	LockoutDuration    time.Duration `yaml:"lockout_duration"`
}

// BootstrapConfig names an account promoted to superuser at startup.
type BootstrapConfig struct {
	Superuser string `yaml:"superuser"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "kkauth",
			Database:     "kkauth",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Store: StoreConfig{Driver: "postgres"},
		Token: TokenConfig{
			Backend:    "jwt",
			Issuer:     "kkauth",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Cookie: CookieConfig{
			Name:           "refresh",
			Path:           "/",
			CSRFCookieName: "csrftoken",
			CSRFHeaderName: "X-CSRFToken",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			ServiceName:    "kkauth",
			ServiceVersion: "0.1.0",
		},
		Security: SecurityConfig{
			Argon2Memory:       65536,
			Argon2Iterations:   3,
			Argon2Parallelism:  4,
			Argon2SaltLength:   16,
			Argon2KeyLength:    32,
			LockoutMaxAttempts: 5,
			LockoutDuration:    15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by KKAUTH_CONFIG, and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.Token.Backend = strings.ToLower(strings.TrimSpace(cfg.Token.Backend))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = parseDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = parseDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = parseDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.RequestTimeout = parseDuration("SERVER_REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.ShutdownTimeout = parseDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.TrustProxyHeaders = parseBool("SERVER_TRUST_PROXY_HEADERS", c.Server.TrustProxyHeaders)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = parseInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = parseInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)

	c.Token.Backend = getEnv("TOKEN_BACKEND", c.Token.Backend)
	c.Token.Secret = getEnv("TOKEN_SECRET", c.Token.Secret)
	c.Token.Issuer = getEnv("TOKEN_ISSUER", c.Token.Issuer)
	c.Token.AccessTTL = parseDuration("TOKEN_ACCESS_TTL", c.Token.AccessTTL)
	c.Token.RefreshTTL = parseDuration("TOKEN_REFRESH_TTL", c.Token.RefreshTTL)

	c.Cookie.Name = getEnv("COOKIE_NAME", c.Cookie.Name)
	c.Cookie.Domain = getEnv("COOKIE_DOMAIN", c.Cookie.Domain)
	c.Cookie.Path = getEnv("COOKIE_PATH", c.Cookie.Path)
	c.Cookie.LocalDev = parseBool("LOCAL_DEV", c.Cookie.LocalDev)
	c.Cookie.CSRFCookieName = getEnv("CSRF_COOKIE_NAME", c.Cookie.CSRFCookieName)
	c.Cookie.CSRFHeaderName = getEnv("CSRF_HEADER_NAME", c.Cookie.CSRFHeaderName)

	c.Observability.LogLevel = getEnv("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.OTELEnabled = parseBool("OTEL_ENABLED", c.Observability.OTELEnabled)
	c.Observability.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Observability.ServiceName)
	c.Observability.ServiceVersion = getEnv("OTEL_SERVICE_VERSION", c.Observability.ServiceVersion)

	c.Security.Argon2Memory = uint32(parseInt("ARGON2_MEMORY", int(c.Security.Argon2Memory)))
	c.Security.Argon2Iterations = uint32(parseInt("ARGON2_ITERATIONS", int(c.Security.Argon2Iterations)))
	c.Security.Argon2Parallelism = uint8(parseInt("ARGON2_PARALLELISM", int(c.Security.Argon2Parallelism)))
	c.Security.Argon2SaltLength = uint32(parseInt("ARGON2_SALT_LENGTH", int(c.Security.Argon2SaltLength)))
	c.Security.Argon2KeyLength = uint32(parseInt("ARGON2_KEY_LENGTH", int(c.Security.Argon2KeyLength)))
	c.Security.LockoutMaxAttempts = parseInt("SECURITY_LOCKOUT_MAX_ATTEMPTS", c.Security.LockoutMaxAttempts)
	c.Security.LockoutDuration = parseDuration("SECURITY_LOCKOUT_DURATION", c.Security.LockoutDuration)

	c.RateLimit.Enabled = parseBool("RATELIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.RequestsPerSecond = parseFloat("RATELIMIT_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = parseInt("RATELIMIT_BURST", c.RateLimit.Burst)

	c.Bootstrap.Superuser = getEnv("KKAUTH_BOOTSTRAP_SUPERUSER", c.Bootstrap.Superuser)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" && c.Database.Password == "" {
			errs = append(errs, errors.New("DATABASE_URL or DB_PASSWORD is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch c.Token.Backend {
	case "jwt":
		if len(c.Token.Secret) < MinSecretLength {
			errs = append(errs, fmt.Errorf("TOKEN_SECRET must be at least %d bytes for the jwt backend", MinSecretLength))
		}
	case "opaque":
	default:
		errs = append(errs, fmt.Errorf("unknown token backend %q", c.Token.Backend))
	}

	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		errs = append(errs, errors.New("access lifetime must be shorter than refresh lifetime"))
	}
	if c.Cookie.Name == "" {
		errs = append(errs, errors.New("cookie name is required"))
	}

	return errors.Join(errs...)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
