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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kitchenkonnect/kkauth/internal/token"
)

// Denylist implements token.Denylist
type Denylist struct {
	db *DB
}

var _ token.Denylist = (*Denylist)(nil)

// NewDenylist creates a new denylist
func NewDenylist(db *DB) *Denylist {
	return &Denylist{db: db}
}

// Revoke inserts rev unless its token ID is present. The primary key makes
// the insert the arbiter between concurrent callers.
func (d *Denylist) Revoke(ctx context.Context, rev token.Revocation) (bool, error) {
	tag, err := d.db.q(ctx).Exec(ctx, `
		INSERT INTO token_revocations (token_id, family_id, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING
	`, rev.TokenID, rev.FamilyID, rev.UserID, rev.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsRevoked reports whether tokenID is denylisted
func (d *Denylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := d.db.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM token_revocations WHERE token_id = $1)`, tokenID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return exists, nil
}

// RevokeFamily denylists a whole token family
func (d *Denylist) RevokeFamily(ctx context.Context, familyID string, expiresAt time.Time) error {
	_, err := d.db.q(ctx).Exec(ctx, `
		INSERT INTO token_family_revocations (family_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (family_id) DO UPDATE
		SET expires_at = GREATEST(token_family_revocations.expires_at, EXCLUDED.expires_at)
	`, familyID, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to revoke token family: %w", err)
	}
	return nil
}

// IsFamilyRevoked reports whether familyID is denylisted
func (d *Denylist) IsFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	var exists bool
	err := d.db.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM token_family_revocations WHERE family_id = $1)`, familyID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check family revocation: %w", err)
	}
	return exists, nil
}

// DeleteExpired purges denylist entries that expired before now
func (d *Denylist) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"token_revocations", "token_family_revocations"} {
		tag, err := d.db.q(ctx).Exec(ctx, `DELETE FROM `+table+` WHERE expires_at < $1`, now)
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// TokenStore implements token.Store
type TokenStore struct {
	db *DB
}

var _ token.Store = (*TokenStore)(nil)

// NewTokenStore creates a new opaque token store
func NewTokenStore(db *DB) *TokenStore {
	return &TokenStore{db: db}
}

// Save stores every record in one transaction
func (s *TokenStore) Save(ctx context.Context, records ...*token.Record) error {
	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		for _, rec := range records {
			_, err := s.db.q(ctx).Exec(ctx, `
				INSERT INTO opaque_tokens (token_hash, token_type, user_id, family_id, expires_at, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, rec.Hash, string(rec.Type), rec.UserID, rec.FamilyID, rec.ExpiresAt, rec.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves a token record by hash
func (s *TokenStore) Get(ctx context.Context, hash string) (*token.Record, error) {
	var rec token.Record
	var typ string
	err := s.db.q(ctx).QueryRow(ctx, `
		SELECT token_hash, token_type, user_id, family_id, expires_at, created_at
		FROM opaque_tokens
		WHERE token_hash = $1
	`, hash).Scan(&rec.Hash, &typ, &rec.UserID, &rec.FamilyID, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	rec.Type = token.Type(typ)
	return &rec, nil
}

// DeleteExpired purges expired token records
func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.q(ctx).Exec(ctx, `DELETE FROM opaque_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
