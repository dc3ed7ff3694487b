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

// Package session delivers refresh credentials to browsers in an HttpOnly
// cookie and guards cookie-sourced refreshes with a CSRF double submit.
package session

import (
	"net/http"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/apperr"
)

var (
	ErrMissingRefreshToken = apperr.New(apperr.KindAuthentication, "refresh token not provided")
	ErrCSRFMismatch        = apperr.New(apperr.KindAuthorization, "CSRF token missing or incorrect")
	ErrBearerRequired      = apperr.New(apperr.KindAuthentication, "Authorization: Bearer header required")
)

// Config controls cookie attributes.
type Config struct {
	CookieName     string
	Path           string
	Domain         string
	LocalDev       bool
	CSRFCookieName string
	CSRFHeaderName string

	// MaxAge of the refresh cookie; zero uses the issuer's refresh TTL.
	MaxAge time.Duration
}

// DefaultConfig returns production cookie settings.
func DefaultConfig() Config {
	return Config{
		CookieName:     "refresh",
		Path:           "/",
		CSRFCookieName: "csrftoken",
		CSRFHeaderName: "X-CSRFToken",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CookieName == "" {
		c.CookieName = d.CookieName
	}
	if c.Path == "" {
		c.Path = d.Path
	}
	if c.CSRFCookieName == "" {
		c.CSRFCookieName = d.CSRFCookieName
	}
	if c.CSRFHeaderName == "" {
		c.CSRFHeaderName = d.CSRFHeaderName
	}
	return c
}

// Secure reports whether cookies carry the Secure attribute.
func (c Config) Secure() bool { return !c.LocalDev }

// SameSite returns the SameSite mode for both cookies. Local development
// falls back to the browser default since SameSite=None requires Secure.
func (c Config) SameSite() http.SameSite {
	if c.LocalDev {
		return http.SameSiteDefaultMode
	}
	return http.SameSiteLaxMode
}

// State is the lifecycle of the refresh cookie as seen by one browser.
type State int

const (
	StateAbsent State = iota
	StateIssued
	StateRotated
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateIssued:
		return "issued"
	case StateRotated:
		return "rotated"
	case StateRevoked:
		return "revoked"
	default:
		return "absent"
	}
}

// Source says where a refresh credential was read from.
type Source string

const (
	SourceBody   Source = "body"
	SourceCookie Source = "cookie"
)

// Result is what a refresh returns to the handler. Refresh is empty when
// the new refresh credential was delivered in the cookie.
type Result struct {
	Access  string
	Refresh string
	Source  Source
}
