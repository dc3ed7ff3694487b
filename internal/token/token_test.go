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

package token_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/store/memory"
	"github.com/kitchenkonnect/kkauth/internal/token"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type backend struct {
	name  string
	build func(t *testing.T, now func() time.Time) (token.Issuer, *audit.MemoryLogger)
}

func backends() []backend {
	return []backend{
		{token.BackendJWT, func(t *testing.T, now func() time.Time) (token.Issuer, *audit.MemoryLogger) {
			s := memory.New()
			al := audit.NewMemoryLogger()
			iss, err := token.NewJWTIssuer(secret, memory.NewDenylist(s), token.Options{Now: now}, al, nil)
			require.NoError(t, err)
			return iss, al
		}},
		{token.BackendOpaque, func(t *testing.T, now func() time.Time) (token.Issuer, *audit.MemoryLogger) {
			s := memory.New()
			al := audit.NewMemoryLogger()
			return token.NewOpaqueIssuer(memory.NewTokenStore(s), memory.NewDenylist(s), token.Options{Now: now}, al, nil), al
		}},
	}
}

// TestPurpose: Validates issuing and verifying a pair on both backends.
// Scope: Unit Test
// Expected: access verifies to the user; refresh is not accepted as access; two issues yield distinct pairs.
// Test Case ID: TOK-01
func TestToken_IssueAndVerify(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			iss, _ := b.build(t, time.Now)
			ctx := context.Background()

			p1, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)
			p2, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)

			assert.NotEqual(t, p1.Access, p2.Access)
			assert.NotEqual(t, p1.Refresh, p2.Refresh)
			assert.NotEqual(t, p1.FamilyID, p2.FamilyID)

			c, err := iss.VerifyAccess(ctx, p1.Access)
			require.NoError(t, err)
			assert.Equal(t, "user-1", c.UserID)
			assert.Equal(t, token.TypeAccess, c.Type)
			assert.Equal(t, p1.FamilyID, c.FamilyID)

			_, err = iss.VerifyAccess(ctx, p1.Refresh)
			assert.ErrorIs(t, err, token.ErrInvalidToken)

			_, err = iss.VerifyAccess(ctx, "garbage")
			assert.ErrorIs(t, err, token.ErrInvalidToken)
		})
	}
}

// TestPurpose: Validates single-use rotation and replay detection.
// Scope: Unit Test
// Security: Refresh token theft detection
// Expected: first rotation succeeds; replaying the old token fails and revokes the whole family, including the successor.
// Test Case ID: TOK-02
func TestToken_Rotate_ReplayRevokesFamily(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			iss, al := b.build(t, time.Now)
			ctx := context.Background()

			p1, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)

			p2, err := iss.Rotate(ctx, p1.Refresh)
			require.NoError(t, err)
			assert.Equal(t, p1.FamilyID, p2.FamilyID)
			assert.NotEqual(t, p1.Refresh, p2.Refresh)

			_, err = iss.Rotate(ctx, p1.Refresh)
			assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
			assert.Len(t, al.Events(audit.TypeTokenReplay), 1)

			_, err = iss.Rotate(ctx, p2.Refresh)
			assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
		})
	}
}

// TestPurpose: Validates that logout revocation makes the refresh token unusable.
// Scope: Unit Test
// Expected: Rotate after Revoke fails with ErrInvalidRefreshToken.
// Test Case ID: TOK-03
func TestToken_Revoke(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			iss, al := b.build(t, time.Now)
			ctx := context.Background()

			p, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)
			require.NoError(t, iss.Revoke(ctx, p.Refresh))

			_, err = iss.Rotate(ctx, p.Refresh)
			assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
			assert.Len(t, al.Events(audit.TypeTokenRevoked), 1)

			assert.ErrorIs(t, iss.Revoke(ctx, "garbage"), token.ErrInvalidRefreshToken)
		})
	}
}

// TestPurpose: Validates that concurrent rotations of one refresh token produce exactly one new pair.
// Scope: Unit Test
// Security: Single-use rotation under races
// Expected: one success among 20 concurrent attempts.
// Test Case ID: TOK-04
func TestToken_Rotate_Race(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			iss, _ := b.build(t, time.Now)
			ctx := context.Background()

			p, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)

			var wins atomic.Int32
			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := iss.Rotate(ctx, p.Refresh); err == nil {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

// TestPurpose: Validates that a refresh racing a logout either fails, or succeeds and is then revoked.
// Scope: Unit Test
// Security: Logout completeness
// Expected: after both complete, no refresh token of the family rotates.
// Test Case ID: TOK-05
func TestToken_RefreshRacingLogout(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			iss, _ := b.build(t, time.Now)
			ctx := context.Background()

			p, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)

			var rotated *token.Pair
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				rotated, _ = iss.Rotate(ctx, p.Refresh)
			}()
			go func() {
				defer wg.Done()
				_ = iss.Revoke(ctx, p.Refresh)
			}()
			wg.Wait()

			if rotated != nil {
				_, err := iss.Rotate(ctx, rotated.Refresh)
				assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
			}
		})
	}
}

// TestPurpose: Validates expiry of access and refresh credentials.
// Scope: Unit Test
// Expected: after the TTLs elapse, verification and rotation fail.
// Test Case ID: TOK-06
func TestToken_Expiry(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			now := time.Now()
			clock := func() time.Time { return now }
			iss, _ := b.build(t, clock)
			ctx := context.Background()

			p, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)

			now = now.Add(token.DefaultAccessTTL + time.Second)
			_, err = iss.VerifyAccess(ctx, p.Access)
			assert.ErrorIs(t, err, token.ErrInvalidToken)

			now = now.Add(token.DefaultRefreshTTL)
			_, err = iss.Rotate(ctx, p.Refresh)
			assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
		})
	}
}

// TestPurpose: Validates backend selection and JWT secret length enforcement.
// Scope: Unit Test
// Expected: known backends build; unknown backend and short secret fail.
// Test Case ID: TOK-07
func TestToken_NewIssuer(t *testing.T) {
	s := memory.New()
	dl := memory.NewDenylist(s)
	ts := memory.NewTokenStore(s)

	iss, err := token.NewIssuer("", secret, dl, ts, token.Options{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, token.BackendJWT, iss.Backend())
	assert.Equal(t, token.DefaultRefreshTTL, iss.RefreshTTL())

	iss, err = token.NewIssuer(token.BackendOpaque, nil, dl, ts, token.Options{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, token.BackendOpaque, iss.Backend())

	_, err = token.NewIssuer("paseto", secret, dl, ts, token.Options{}, nil, nil)
	assert.Error(t, err)

	_, err = token.NewIssuer(token.BackendJWT, []byte("short"), dl, ts, token.Options{}, nil, nil)
	assert.Error(t, err)
}

// issuerOn builds the named backend over an existing memory store.
func issuerOn(t *testing.T, s *memory.Store, name string, now func() time.Time) token.Issuer {
	t.Helper()
	iss, err := token.NewIssuer(name, secret, memory.NewDenylist(s), memory.NewTokenStore(s), token.Options{Now: now}, audit.NewMemoryLogger(), nil)
	require.NoError(t, err)
	return iss
}

// TestPurpose: Validates that a revoked family stays revoked after expired denylist entries are purged.
// Scope: Unit Test
// Security: Refresh token theft detection survives cleanup
// Expected: the successor of a replayed token is rejected even after cleanup passes the replayed token's expiry.
// Test Case ID: TOK-08
func TestToken_FamilyRevocation_SurvivesCleanup(t *testing.T) {
	for _, name := range []string{token.BackendJWT, token.BackendOpaque} {
		t.Run(name, func(t *testing.T) {
			t0 := time.Now()
			now := t0
			s := memory.New()
			iss := issuerOn(t, s, name, func() time.Time { return now })
			ctx := context.Background()

			p1, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)

			now = t0.Add(6 * 24 * time.Hour)
			p2, err := iss.Rotate(ctx, p1.Refresh)
			require.NoError(t, err)

			_, err = iss.Rotate(ctx, p1.Refresh)
			require.ErrorIs(t, err, token.ErrInvalidRefreshToken)

			now = t0.Add(8 * 24 * time.Hour)
			_, err = memory.NewDenylist(s).DeleteExpired(ctx, now)
			require.NoError(t, err)
			_, err = memory.NewTokenStore(s).DeleteExpired(ctx, now)
			require.NoError(t, err)

			_, err = iss.Rotate(ctx, p2.Refresh)
			assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
		})
	}
}

// TestPurpose: Validates that a rotation landing while an unrelated transaction is open survives that transaction's rollback.
// Scope: Unit Test
// Security: Single-use refresh rotation
// Expected: the rotation succeeds once; presenting the consumed token again fails.
// Test Case ID: TOK-09
func TestToken_Rotate_DuringRolledBackTx(t *testing.T) {
	for _, name := range []string{token.BackendJWT, token.BackendOpaque} {
		t.Run(name, func(t *testing.T) {
			s := memory.New()
			iss := issuerOn(t, s, name, time.Now)
			ctx := context.Background()

			p1, err := iss.Issue(ctx, "user-1")
			require.NoError(t, err)

			entered := make(chan struct{})
			release := make(chan struct{})
			txErr := make(chan error, 1)
			go func() {
				txErr <- s.WithinTx(ctx, func(ctx context.Context) error {
					close(entered)
					<-release
					return assert.AnError
				})
			}()
			<-entered

			rotated := make(chan error, 1)
			go func() {
				_, err := iss.Rotate(ctx, p1.Refresh)
				rotated <- err
			}()
			time.Sleep(20 * time.Millisecond)
			close(release)

			assert.ErrorIs(t, <-txErr, assert.AnError)
			require.NoError(t, <-rotated)

			_, err = iss.Rotate(ctx, p1.Refresh)
			assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
		})
	}
}
