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

package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kitchenkonnect/kkauth/internal/apperr"
	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/session"
	"github.com/kitchenkonnect/kkauth/internal/store"
	"github.com/kitchenkonnect/kkauth/internal/token"
	"github.com/kitchenkonnect/kkauth/internal/verification"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

var (
	errNotAuthenticated = apperr.New(apperr.KindAuthentication, "authentication credentials were not provided")
	errForbidden        = apperr.New(apperr.KindAuthorization, "you do not have permission to perform this action")
	errInvalidBody      = apperr.New(apperr.KindValidation, "invalid request body")
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService     *identity.Service
	verificationService *verification.Service
	mirror              *groups.Mirror
	issuer              token.Issuer
	sessions            *session.Manager
	tx                  store.Transactor
	auditLogger         audit.Logger
	requestTimeout      time.Duration
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	verificationService *verification.Service,
	mirror *groups.Mirror,
	issuer token.Issuer,
	sessions *session.Manager,
	tx store.Transactor,
	auditLogger audit.Logger,
	requestTimeout time.Duration,
) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Handler{
		identityService:     identityService,
		verificationService: verificationService,
		mirror:              mirror,
		issuer:              issuer,
		sessions:            sessions,
		tx:                  tx,
		auditLogger:         auditLogger,
		requestTimeout:      requestTimeout,
	}
}

// NewRouter creates the HTTP router. A nil rateLimiter disables rate limiting.
// Proxy headers rewrite the client address only when trustProxy is set.
func NewRouter(h *Handler, rateLimiter *RateLimiter, trustProxy bool) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/auth", func(r chi.Router) {
		// Credential endpoints
		r.Group(func(r chi.Router) {
			if rateLimiter != nil {
				r.Use(RateLimitMiddleware(rateLimiter))
			}
			r.Post("/register", h.Register)
			r.Post("/token", h.Login)
			r.Post("/token/refresh", h.Refresh)
			r.Post("/token/refresh-noncookie", h.RefreshNonCookie)
		})
		r.Post("/logout", h.Logout)
		r.Get("/csrf", h.CSRF)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/me", h.GetCurrentUser)
			r.Patch("/me", h.UpdateProfile)
			r.Post("/me/password", h.ChangePassword)

			r.Post("/verification", h.SubmitVerification)

			r.With(RequireRole(identity.RoleNutritionist)).Get("/areas/nutritionist", h.Area("nutritionist"))
			r.With(RequireRole(identity.RoleRegulator)).Get("/areas/regulator", h.Area("regulator"))

			// Rank-gated routes
			r.Group(func(r chi.Router) {
				r.Use(RequireMinRank(identity.RankRegulatorFloor))

				r.Get("/areas/admin", h.Area("admin"))
				r.Get("/admin/users", h.ListUsers)
				r.Patch("/admin/users/{userID}", h.UpdateUser)
				r.Get("/verification/requests", h.ListVerificationRequests)
				r.Get("/verification/requests/{requestID}", h.GetVerificationRequest)
				r.Patch("/verification/requests/{requestID}", h.ReviewVerificationRequest)
			})

			r.With(RequireMinRank(identity.RankAdminFloor)).Post("/admin/groups/sync", h.SyncGroups)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "kkauth",
		"backend": h.issuer.Backend(),
	})
}

// Area serves a role-restricted landing resource.
func (h *Handler) Area(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		respondJSON(w, http.StatusOK, map[string]any{
			"area":       name,
			"username":   user.Username,
			"role":       user.Role,
			"admin_rank": user.AdminRank,
		})
	}
}

// Helper functions

// decodeJSON decodes the request body into v. An empty body leaves v untouched
// when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError classifies err and writes it as {"error": kind, "message": text}.
// Unclassified errors are logged and surface as a generic internal error.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.Classify(err)
	if e.Kind == apperr.KindInternal {
		slog.ErrorContext(r.Context(), "request failed",
			logger.Path(r.URL.Path),
			logger.Method(r.Method),
			logger.Error(err),
		)
	}
	respondStatus(w, e.Kind.HTTPStatus(), e)
}

func respondStatus(w http.ResponseWriter, status int, e *apperr.Error) {
	respondJSON(w, status, e)
}

func getIPAddress(r *http.Request) string {
	return getClientIP(r)
}
