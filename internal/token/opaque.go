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

package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/id"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
)

// OpaqueIssuer issues random 256-bit credentials stored server-side as
// SHA-256 hashes. Every verification is a lookup.
type OpaqueIssuer struct {
	store  Store
	opts   Options
	ledger ledger
}

var _ Issuer = (*OpaqueIssuer)(nil)

// NewOpaqueIssuer creates an opaque issuer.
func NewOpaqueIssuer(store Store, denylist Denylist, opts Options, auditLogger audit.Logger, instruments *metrics.Instruments) *OpaqueIssuer {
	opts = opts.withDefaults()
	return &OpaqueIssuer{
		store:  store,
		opts:   opts,
		ledger: newLedger(denylist, auditLogger, instruments, BackendOpaque, opts),
	}
}

func (i *OpaqueIssuer) Backend() string { return BackendOpaque }

func (i *OpaqueIssuer) RefreshTTL() time.Duration { return i.opts.RefreshTTL }

// Issue mints a new pair in a fresh family.
func (i *OpaqueIssuer) Issue(ctx context.Context, userID string) (*Pair, error) {
	pair, err := i.mint(ctx, userID, id.NewUUIDv7())
	if err != nil {
		return nil, err
	}
	i.ledger.issued(ctx, userID, pair.FamilyID)
	return pair, nil
}

func (i *OpaqueIssuer) mint(ctx context.Context, userID, familyID string) (*Pair, error) {
	access, err := generateToken()
	if err != nil {
		return nil, err
	}
	refresh, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := i.opts.Now()
	pair := &Pair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  now.Add(i.opts.AccessTTL),
		RefreshExpiresAt: now.Add(i.opts.RefreshTTL),
		FamilyID:         familyID,
	}

	err = i.store.Save(ctx,
		&Record{Hash: hashToken(access), Type: TypeAccess, UserID: userID, FamilyID: familyID, ExpiresAt: pair.AccessExpiresAt, CreatedAt: now},
		&Record{Hash: hashToken(refresh), Type: TypeRefresh, UserID: userID, FamilyID: familyID, ExpiresAt: pair.RefreshExpiresAt, CreatedAt: now},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store credential pair: %w", err)
	}
	return pair, nil
}

func (i *OpaqueIssuer) lookup(ctx context.Context, raw string, want Type) (*Record, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	rec, err := i.store.Get(ctx, hashToken(raw))
	if err != nil {
		return nil, err
	}
	if rec.Type != want || !i.opts.Now().Before(rec.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return rec, nil
}

// VerifyAccess looks up the access credential and rejects it once its family
// has been revoked.
func (i *OpaqueIssuer) VerifyAccess(ctx context.Context, raw string) (*Claims, error) {
	rec, err := i.lookup(ctx, raw, TypeAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := i.ledger.denylist.IsFamilyRevoked(ctx, rec.FamilyID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claimsOf(rec), nil
}

// Rotate consumes a refresh credential and mints a successor in the same family.
func (i *OpaqueIssuer) Rotate(ctx context.Context, rawRefresh string) (*Pair, error) {
	rec, err := i.lookup(ctx, rawRefresh, TypeRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	if err := i.ledger.consume(ctx, revocationOf(claimsOf(rec))); err != nil {
		return nil, ErrInvalidRefreshToken
	}

	pair, err := i.mint(ctx, rec.UserID, rec.FamilyID)
	if err != nil {
		return nil, err
	}
	i.ledger.issued(ctx, rec.UserID, rec.FamilyID)
	return pair, nil
}

// Revoke denylists a refresh credential and its family.
func (i *OpaqueIssuer) Revoke(ctx context.Context, rawRefresh string) error {
	rec, err := i.lookup(ctx, rawRefresh, TypeRefresh)
	if err != nil {
		return ErrInvalidRefreshToken
	}
	return i.ledger.revoke(ctx, revocationOf(claimsOf(rec)))
}

func claimsOf(rec *Record) *Claims {
	return &Claims{
		UserID:    rec.UserID,
		TokenID:   rec.Hash,
		FamilyID:  rec.FamilyID,
		Type:      rec.Type,
		IssuedAt:  rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
