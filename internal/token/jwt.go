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
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/id"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
)

// MinSecretLength is the shortest accepted HS256 signing secret.
const MinSecretLength = 32

type jwtClaims struct {
	Type     Type   `json:"typ"`
	FamilyID string `json:"sid"`
	jwt.RegisteredClaims
}

// JWTIssuer issues HS256-signed credentials. Access verification is
// stateless; refresh credentials are checked against the denylist.
type JWTIssuer struct {
	secret []byte
	opts   Options
	ledger ledger
}

var _ Issuer = (*JWTIssuer)(nil)

// NewJWTIssuer creates a JWT issuer.
func NewJWTIssuer(secret []byte, denylist Denylist, opts Options, auditLogger audit.Logger, instruments *metrics.Instruments) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	opts = opts.withDefaults()
	return &JWTIssuer{
		secret: secret,
		opts:   opts,
		ledger: newLedger(denylist, auditLogger, instruments, BackendJWT, opts),
	}, nil
}

func (i *JWTIssuer) Backend() string { return BackendJWT }

func (i *JWTIssuer) RefreshTTL() time.Duration { return i.opts.RefreshTTL }

// Issue mints a new pair in a fresh family.
func (i *JWTIssuer) Issue(ctx context.Context, userID string) (*Pair, error) {
	pair, err := i.mint(userID, id.NewUUIDv7())
	if err != nil {
		return nil, err
	}
	i.ledger.issued(ctx, userID, pair.FamilyID)
	return pair, nil
}

func (i *JWTIssuer) mint(userID, familyID string) (*Pair, error) {
	now := i.opts.Now()

	access, accessExp, err := i.sign(userID, familyID, TypeAccess, now, i.opts.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.sign(userID, familyID, TypeRefresh, now, i.opts.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &Pair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		FamilyID:         familyID,
	}, nil
}

func (i *JWTIssuer) sign(userID, familyID string, typ Type, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := jwtClaims{
		Type:     typ,
		FamilyID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.opts.Issuer,
			Subject:   userID,
			ID:        id.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

func (i *JWTIssuer) parse(raw string, want Type) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.opts.Now),
	}
	if i.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.opts.Issuer))
	}

	var c jwtClaims
	tok, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if c.Type != want || c.Subject == "" || c.ID == "" || c.FamilyID == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:    c.Subject,
		TokenID:   c.ID,
		FamilyID:  c.FamilyID,
		Type:      c.Type,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// VerifyAccess checks signature, expiry and type.
func (i *JWTIssuer) VerifyAccess(ctx context.Context, raw string) (*Claims, error) {
	c, err := i.parse(raw, TypeAccess)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// Rotate consumes a refresh token and mints a successor in the same family.
func (i *JWTIssuer) Rotate(ctx context.Context, rawRefresh string) (*Pair, error) {
	c, err := i.parse(rawRefresh, TypeRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	if err := i.ledger.consume(ctx, revocationOf(c)); err != nil {
		return nil, ErrInvalidRefreshToken
	}

	pair, err := i.mint(c.UserID, c.FamilyID)
	if err != nil {
		return nil, err
	}
	i.ledger.issued(ctx, c.UserID, c.FamilyID)
	return pair, nil
}

// Revoke denylists a refresh token and its family.
func (i *JWTIssuer) Revoke(ctx context.Context, rawRefresh string) error {
	c, err := i.parse(rawRefresh, TypeRefresh)
	if err != nil {
		return ErrInvalidRefreshToken
	}
	return i.ledger.revoke(ctx, revocationOf(c))
}

func revocationOf(c *Claims) Revocation {
	return Revocation{
		TokenID:   c.TokenID,
		FamilyID:  c.FamilyID,
		UserID:    c.UserID,
		ExpiresAt: c.ExpiresAt,
	}
}
