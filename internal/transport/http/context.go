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
	"context"

	"github.com/kitchenkonnect/kkauth/internal/identity"
)

type contextKey string

const (
	userKey    contextKey = "user"
	tokenIDKey contextKey = "token_id"
)

// GetUser retrieves the authenticated user from context, or nil.
func GetUser(ctx context.Context) *identity.User {
	if val, ok := ctx.Value(userKey).(*identity.User); ok {
		return val
	}
	return nil
}

// GetUserID retrieves the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.ID
	}
	return ""
}

// GetTokenID retrieves the ID of the access credential that authenticated the request.
func GetTokenID(ctx context.Context) string {
	if val, ok := ctx.Value(tokenIDKey).(string); ok {
		return val
	}
	return ""
}

// WithUser returns ctx carrying u as the authenticated principal.
func WithUser(ctx context.Context, u *identity.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func contextWithTokenID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tokenIDKey, id)
}
