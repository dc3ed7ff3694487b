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

package memory

import (
	"context"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/token"
)

// Denylist implements token.Denylist
type Denylist struct {
	s *Store
}

var _ token.Denylist = (*Denylist)(nil)

// NewDenylist creates a new denylist
func NewDenylist(s *Store) *Denylist {
	return &Denylist{s: s}
}

// Revoke inserts rev unless its token ID is already present.
func (d *Denylist) Revoke(ctx context.Context, rev token.Revocation) (bool, error) {
	defer d.s.lock(ctx)()

	if _, ok := d.s.data.revoked[rev.TokenID]; ok {
		return false, nil
	}
	d.s.data.revoked[rev.TokenID] = rev
	return true, nil
}

func (d *Denylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	_, ok := d.s.data.revoked[tokenID]
	return ok, nil
}

func (d *Denylist) RevokeFamily(ctx context.Context, familyID string, expiresAt time.Time) error {
	defer d.s.lock(ctx)()

	if cur, ok := d.s.data.families[familyID]; !ok || expiresAt.After(cur) {
		d.s.data.families[familyID] = expiresAt
	}
	return nil
}

func (d *Denylist) IsFamilyRevoked(_ context.Context, familyID string) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	_, ok := d.s.data.families[familyID]
	return ok, nil
}

func (d *Denylist) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer d.s.lock(ctx)()

	var n int64
	for k, rev := range d.s.data.revoked {
		if rev.ExpiresAt.Before(now) {
			delete(d.s.data.revoked, k)
			n++
		}
	}
	for k, exp := range d.s.data.families {
		if exp.Before(now) {
			delete(d.s.data.families, k)
			n++
		}
	}
	return n, nil
}

// TokenStore implements token.Store
type TokenStore struct {
	s *Store
}

var _ token.Store = (*TokenStore)(nil)

// NewTokenStore creates a new opaque token store
func NewTokenStore(s *Store) *TokenStore {
	return &TokenStore{s: s}
}

func (t *TokenStore) Save(ctx context.Context, records ...*token.Record) error {
	defer t.s.lock(ctx)()

	for _, rec := range records {
		t.s.data.tokens[rec.Hash] = *rec
	}
	return nil
}

func (t *TokenStore) Get(_ context.Context, hash string) (*token.Record, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	rec, ok := t.s.data.tokens[hash]
	if !ok {
		return nil, token.ErrTokenNotFound
	}
	return &rec, nil
}

func (t *TokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer t.s.lock(ctx)()

	var n int64
	for k, rec := range t.s.data.tokens {
		if rec.ExpiresAt.Before(now) {
			delete(t.s.data.tokens, k)
			n++
		}
	}
	return n, nil
}
