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

package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/token"
)

// Manager owns the refresh cookie for every issuer backend.
type Manager struct {
	cfg    Config
	issuer token.Issuer
}

// NewManager creates a cookie session manager.
func NewManager(cfg Config, issuer token.Issuer) *Manager {
	cfg = cfg.withDefaults()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = issuer.RefreshTTL()
	}
	return &Manager{cfg: cfg, issuer: issuer}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Start delivers the refresh half of pair in the cookie. The refresh
// credential never appears in a response body on this path.
func (m *Manager) Start(w http.ResponseWriter, pair *token.Pair) {
	m.setRefreshCookie(w, pair.Refresh)
}

// Refresh rotates a refresh credential taken from the body if present,
// otherwise from the cookie. Cookie-sourced calls must pass the CSRF double
// submit check and get their successor in the cookie; body-sourced calls
// get it in the result.
func (m *Manager) Refresh(ctx context.Context, w http.ResponseWriter, r *http.Request, bodyToken string) (*Result, error) {
	if bodyToken != "" {
		pair, err := m.issuer.Rotate(ctx, bodyToken)
		if err != nil {
			return nil, err
		}
		return &Result{Access: pair.Access, Refresh: pair.Refresh, Source: SourceBody}, nil
	}

	raw := m.refreshFromCookie(r)
	if raw == "" {
		return nil, ErrMissingRefreshToken
	}
	if err := m.CheckCSRF(r); err != nil {
		return nil, err
	}

	pair, err := m.issuer.Rotate(ctx, raw)
	if err != nil {
		if errors.Is(err, token.ErrInvalidRefreshToken) {
			m.clearRefreshCookie(w)
			m.logTransition(ctx, StateIssued, StateRevoked)
		}
		return nil, err
	}

	m.setRefreshCookie(w, pair.Refresh)
	m.logTransition(ctx, StateIssued, StateRotated)
	return &Result{Access: pair.Access, Source: SourceCookie}, nil
}

// RefreshNonCookie serves clients that hold no cookie. The caller must
// present an Authorization: Bearer header; only its presence is checked,
// the refresh credential itself authenticates the call.
func (m *Manager) RefreshNonCookie(ctx context.Context, r *http.Request, bodyToken string) (*Result, error) {
	if bearerToken(r) == "" {
		return nil, ErrBearerRequired
	}
	if bodyToken == "" {
		return nil, ErrMissingRefreshToken
	}

	pair, err := m.issuer.Rotate(ctx, bodyToken)
	if err != nil {
		return nil, err
	}
	return &Result{Access: pair.Access, Refresh: pair.Refresh, Source: SourceBody}, nil
}

// End revokes the presented refresh credential, body first then cookie,
// and clears the cookie. Revocation failures are logged, never returned.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, r *http.Request, bodyToken string) {
	raw := bodyToken
	if raw == "" {
		raw = m.refreshFromCookie(r)
	}

	if raw != "" {
		if err := m.issuer.Revoke(ctx, raw); err != nil {
			slog.WarnContext(ctx, "logout revocation failed",
				logger.Component("session"),
				logger.TokenBackend(m.issuer.Backend()),
				logger.Error(err),
			)
		}
	}

	m.clearRefreshCookie(w)
	m.logTransition(ctx, StateIssued, StateRevoked)
}

// EnsureCSRF returns the CSRF token from the request cookie, minting and
// setting a new one when absent. The cookie is readable by scripts so the
// client can echo it in the CSRF header.
func (m *Manager) EnsureCSRF(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(m.cfg.CSRFCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	tok := base64.RawURLEncoding.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CSRFCookieName,
		Value:    tok,
		Path:     "/",
		Domain:   m.cfg.Domain,
		MaxAge:   int(m.cfg.MaxAge.Seconds()),
		Secure:   m.cfg.Secure(),
		HttpOnly: false,
		SameSite: m.cfg.SameSite(),
	})
	return tok, nil
}

// CheckCSRF compares the CSRF header with the CSRF cookie in constant time.
func (m *Manager) CheckCSRF(r *http.Request) error {
	header := r.Header.Get(m.cfg.CSRFHeaderName)
	c, err := r.Cookie(m.cfg.CSRFCookieName)
	if header == "" || err != nil || c.Value == "" {
		return ErrCSRFMismatch
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(c.Value)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}

// StateOf derives the cookie state after a response that set cookies.
func (m *Manager) StateOf(prev State, set []*http.Cookie) State {
	for _, c := range set {
		if c.Name != m.cfg.CookieName {
			continue
		}
		if c.MaxAge < 0 || c.Value == "" {
			return StateRevoked
		}
		if prev == StateIssued || prev == StateRotated {
			return StateRotated
		}
		return StateIssued
	}
	return prev
}

func (m *Manager) refreshFromCookie(r *http.Request) string {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (m *Manager) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     m.cfg.Path,
		Domain:   m.cfg.Domain,
		MaxAge:   int(m.cfg.MaxAge.Seconds()),
		Expires:  time.Now().Add(m.cfg.MaxAge),
		Secure:   m.cfg.Secure(),
		HttpOnly: true,
		SameSite: m.cfg.SameSite(),
	})
}

func (m *Manager) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     m.cfg.Path,
		Domain:   m.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   m.cfg.Secure(),
		HttpOnly: true,
		SameSite: m.cfg.SameSite(),
	})
}

func (m *Manager) logTransition(ctx context.Context, from, to State) {
	slog.DebugContext(ctx, "refresh cookie transition",
		logger.Component("session"),
		logger.SessionState(from.String(), to.String()),
	)
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
