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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// TestPurpose: Validates that environment variables override defaults.
// Scope: Unit Test
// Security: Configuration integrity
// Expected: env values win and untouched fields keep their defaults.
// Test Case ID: CFG-01
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TOKEN_SECRET", testSecret)
	t.Setenv("TOKEN_ACCESS_TTL", "2m")
	t.Setenv("LOCAL_DEV", "true")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_TRUST_PROXY_HEADERS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
	assert.True(t, cfg.Cookie.LocalDev)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, "refresh", cfg.Cookie.Name)
}

// TestPurpose: Validates the YAML overlay and its precedence below the environment.
// Scope: Unit Test
// Security: Configuration integrity
// Expected: file values apply, env values override the file.
// Test Case ID: CFG-02
func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kkauth.yaml")
	body := `
store:
  driver: memory
token:
  backend: opaque
  refresh_ttl: 48h
cookie:
  name: kk_refresh
rate_limit:
  burst: 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv(EnvConfigFile, path)
	t.Setenv("RATELIMIT_BURST", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "opaque", cfg.Token.Backend)
	assert.Equal(t, 48*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, "kk_refresh", cfg.Cookie.Name)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, 5*time.Minute, cfg.Token.AccessTTL)
}

// TestPurpose: Validates rejection of unsafe or incomplete configurations.
// Scope: Unit Test
// Security: Weak signing secrets
// Expected: Validate returns an error for each broken configuration.
// Test Case ID: CFG-03
func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Store.Driver = "memory"
		cfg.Token.Secret = testSecret
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short jwt secret", func(c *Config) { c.Token.Secret = "short" }},
		{"unknown backend", func(c *Config) { c.Token.Backend = "saml" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"postgres without credentials", func(c *Config) { c.Store.Driver = "postgres" }},
		{"access outlives refresh", func(c *Config) { c.Token.AccessTTL = 8 * 24 * time.Hour }},
		{"empty cookie name", func(c *Config) { c.Cookie.Name = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("opaque needs no secret", func(t *testing.T) {
		cfg := valid()
		cfg.Token.Backend = "opaque"
		cfg.Token.Secret = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("postgres with url", func(t *testing.T) {
		cfg := valid()
		cfg.Store.Driver = "postgres"
		cfg.Database.URL = "postgres://kkauth@localhost/kkauth"
		assert.NoError(t, cfg.Validate())
	})
}

// TestPurpose: Validates that a missing config file is reported.
// Scope: Unit Test
// Expected: Load fails when KKAUTH_CONFIG points nowhere.
// Test Case ID: CFG-04
func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
