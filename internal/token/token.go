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

// Package token issues, verifies, rotates and revokes access/refresh
// credential pairs. Two backends exist: signed JWTs and opaque random
// strings; one is selected at startup.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/apperr"
	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
)

var (
	ErrInvalidToken        = apperr.New(apperr.KindAuthentication, "token is invalid or expired")
	ErrInvalidRefreshToken = apperr.New(apperr.KindAuthentication, "refresh token is invalid, expired or revoked")
	ErrTokenNotFound       = apperr.New(apperr.KindAuthentication, "token not found")
)

// Backend names accepted by configuration.
const (
	BackendJWT    = "jwt"
	BackendOpaque = "opaque"
)

// Default lifetimes
const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Type distinguishes the two halves of a pair.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Pair is an access credential plus the refresh credential that renews it.
// FamilyID is shared by every pair descended from one login.
type Pair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	FamilyID         string
}

// Claims is what a verified credential asserts.
type Claims struct {
	UserID    string
	TokenID   string
	FamilyID  string
	Type      Type
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer is implemented by both backends.
type Issuer interface {
	// Issue mints a new pair in a fresh family.
	Issue(ctx context.Context, userID string) (*Pair, error)

	// VerifyAccess validates an access credential.
	VerifyAccess(ctx context.Context, raw string) (*Claims, error)

	// Rotate consumes a refresh credential and returns a new pair in the same
	// family. Every failure is ErrInvalidRefreshToken.
	Rotate(ctx context.Context, rawRefresh string) (*Pair, error)

	// Revoke denylists a refresh credential and its family.
	Revoke(ctx context.Context, rawRefresh string) error

	// Backend names the implementation.
	Backend() string

	// RefreshTTL is the lifetime of refresh credentials, used for cookie Max-Age.
	RefreshTTL() time.Duration
}

// Revocation is one denylist entry. Entries can be purged after ExpiresAt,
// once the credential could no longer verify anyway.
type Revocation struct {
	TokenID   string
	FamilyID  string
	UserID    string
	ExpiresAt time.Time
}

// Denylist records consumed or revoked refresh credentials.
type Denylist interface {
	// Revoke inserts rev if its TokenID is absent and reports whether this
	// call inserted it. Exactly one concurrent caller wins.
	Revoke(ctx context.Context, rev Revocation) (bool, error)

	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// RevokeFamily denylists every credential of a family until expiresAt,
	// which must not precede the expiry of any member. Repeated calls keep
	// the latest expiry.
	RevokeFamily(ctx context.Context, familyID string, expiresAt time.Time) error

	IsFamilyRevoked(ctx context.Context, familyID string) (bool, error)

	// DeleteExpired purges entries that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Record is a stored opaque credential, keyed by the SHA-256 of its value.
type Record struct {
	Hash      string
	Type      Type
	UserID    string
	FamilyID  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store persists opaque credential records.
type Store interface {
	// Save stores every record or none.
	Save(ctx context.Context, records ...*Record) error

	// Get returns ErrTokenNotFound for unknown hashes.
	Get(ctx context.Context, hash string) (*Record, error)

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Options tune an issuer.
type Options struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.AccessTTL <= 0 {
		o.AccessTTL = DefaultAccessTTL
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = DefaultRefreshTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// NewIssuer builds the issuer for backend. The opaque backend ignores secret;
// the jwt backend ignores store.
func NewIssuer(backend string, secret []byte, denylist Denylist, store Store, opts Options, auditLogger audit.Logger, instruments *metrics.Instruments) (Issuer, error) {
	switch backend {
	case "", BackendJWT:
		return NewJWTIssuer(secret, denylist, opts, auditLogger, instruments)
	case BackendOpaque:
		if store == nil {
			return nil, fmt.Errorf("opaque token backend requires a token store")
		}
		return NewOpaqueIssuer(store, denylist, opts, auditLogger, instruments), nil
	default:
		return nil, fmt.Errorf("unknown token backend %q", backend)
	}
}
