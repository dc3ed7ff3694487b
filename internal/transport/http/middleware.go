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
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/kitchenkonnect/kkauth/internal/authz"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/token"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.DebugContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware verifies the access credential in the Authorization header
// and puts the user it names into the request context. Both the Bearer and
// the legacy Token scheme are accepted.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := accessCredential(r)
		if raw == "" {
			respondError(w, r, errNotAuthenticated)
			return
		}

		claims, err := h.issuer.VerifyAccess(r.Context(), raw)
		if err != nil {
			respondError(w, r, token.ErrInvalidToken)
			return
		}

		user, err := h.identityService.GetUser(r.Context(), claims.UserID)
		if err != nil || !user.IsActive {
			respondError(w, r, token.ErrInvalidToken)
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = contextWithTokenID(ctx, claims.TokenID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireMinRank admits principals whose admin rank is at least n.
func RequireMinRank(n int) func(http.Handler) http.Handler {
	return requireAll(authz.RequireMinRank(n))
}

// RequireRole admits principals holding role.
func RequireRole(role identity.Role) func(http.Handler) http.Handler {
	return requireAll(authz.RequireRole(role))
}

func requireAll(reqs ...authz.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			switch decision := authz.Evaluate(user, reqs...); decision {
			case authz.Allowed:
				next.ServeHTTP(w, r)
			case authz.Unauthenticated:
				respondError(w, r, errNotAuthenticated)
			default:
				slog.WarnContext(r.Context(), "permission denied",
					logger.UserID(user.ID),
					logger.Role(string(user.Role)),
					logger.Rank(user.AdminRank),
					logger.Path(r.URL.Path),
				)
				respondError(w, r, errForbidden)
			}
		})
	}
}

func accessCredential(r *http.Request) string {
	scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok {
		return ""
	}
	if !strings.EqualFold(scheme, "Bearer") && !strings.EqualFold(scheme, "Token") {
		return ""
	}
	return strings.TrimSpace(value)
}
