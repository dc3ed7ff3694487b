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

package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/config"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/token"
)

func memoryConfig(backend string) *config.Config {
	cfg := config.Defaults()
	cfg.Store.Driver = "memory"
	cfg.Token.Backend = backend
	cfg.Token.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Security.Argon2Memory = 8 * 1024
	cfg.Security.Argon2Iterations = 1
	cfg.Security.Argon2Parallelism = 1
	return cfg
}

// TestPurpose: Validates that both credential backends are selected from configuration.
// Scope: Unit Test
// Expected: the issuer reports the configured backend and issues usable pairs.
// Test Case ID: APP-01
func TestNew_SelectsBackend(t *testing.T) {
	for _, backend := range []string{token.BackendJWT, token.BackendOpaque} {
		t.Run(backend, func(t *testing.T) {
			a, err := New(context.Background(), memoryConfig(backend), audit.NewMemoryLogger(), nil)
			require.NoError(t, err)
			defer a.Close()

			assert.Equal(t, backend, a.Issuer.Backend())
			assert.Nil(t, a.DB)

			u, err := a.Identity.Register(context.Background(), identity.RegisterInput{
				Username: "alice",
				Email:    "alice@example.com",
				Password: "SecurePassword123",
			})
			require.NoError(t, err)

			pair, err := a.Issuer.Issue(context.Background(), u.ID)
			require.NoError(t, err)
			claims, err := a.Issuer.VerifyAccess(context.Background(), pair.Access)
			require.NoError(t, err)
			assert.Equal(t, u.ID, claims.UserID)
		})
	}
}

// TestPurpose: Validates rejection of an unknown store driver.
// Scope: Unit Test
// Expected: New fails without touching any backend.
// Test Case ID: APP-02
func TestNew_UnknownDriver(t *testing.T) {
	cfg := memoryConfig(token.BackendJWT)
	cfg.Store.Driver = "sqlite"
	_, err := New(context.Background(), cfg, audit.NewMemoryLogger(), nil)
	assert.Error(t, err)
}

// TestPurpose: Validates that cleanup purges only expired credentials and revocations.
// Scope: Unit Test
// Expected: nothing is purged at issue time; everything is purged past the refresh lifetime.
// Test Case ID: APP-03
func TestCleanup(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(token.BackendOpaque), audit.NewMemoryLogger(), nil)
	require.NoError(t, err)

	u, err := a.Identity.Register(ctx, identity.RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "SecurePassword123",
	})
	require.NoError(t, err)
	pair, err := a.Issuer.Issue(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, a.Issuer.Revoke(ctx, pair.Refresh))

	res, err := a.Cleanup(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, res.Tokens)
	assert.Zero(t, res.Revocations)

	res, err = a.Cleanup(ctx, time.Now().Add(a.Config.Token.RefreshTTL+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Tokens)
	assert.Positive(t, res.Revocations)
}
