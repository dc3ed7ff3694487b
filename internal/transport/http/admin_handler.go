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
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kitchenkonnect/kkauth/internal/apperr"
	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/identity"
)

var errInvalidDryRun = apperr.New(apperr.KindValidation, "dry_run must be a boolean")

// ListUsers returns every user ordered by creation time.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.identityService.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, newUserResponse(u))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": resp,
		"count": len(resp),
	})
}

// AdminUserRequest changes role and/or rank. Absent fields are left alone.
type AdminUserRequest struct {
	Role      *string `json:"role"`
	AdminRank *int    `json:"admin_rank"`
}

// UpdateUser applies an administrative role/rank change.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req AdminUserRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	var in identity.AdminUpdateInput
	if req.Role != nil {
		role, err := identity.ParseRole(*req.Role)
		if err != nil {
			respondError(w, r, err)
			return
		}
		in.Role = &role
	}
	in.AdminRank = req.AdminRank

	user, err := h.identityService.AdminUpdate(r.Context(), GetUser(r.Context()), chi.URLParam(r, "userID"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// ChangeResponse is one line of a group sync report.
type ChangeResponse struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     string   `json:"role"`
	Before   []string `json:"before"`
	After    []string `json:"after"`
	Changed  bool     `json:"changed"`
}

// SyncFailureResponse is a user the bulk sync could not repair.
type SyncFailureResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Error    string `json:"error"`
}

// SyncGroups re-mirrors group membership for all users, or one with ?username=.
func (h *Handler) SyncGroups(w http.ResponseWriter, r *http.Request) {
	opts := groups.SyncOptions{Username: r.URL.Query().Get("username")}
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, errInvalidDryRun)
			return
		}
		opts.DryRun = dry
	}

	report, err := h.mirror.SyncAll(r.Context(), opts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	changes := make([]ChangeResponse, 0, len(report.Changes))
	for _, c := range report.Changes {
		changes = append(changes, ChangeResponse{
			UserID:   c.UserID,
			Username: c.Username,
			Role:     c.Role.String(),
			Before:   c.Before,
			After:    c.After,
			Changed:  c.Changed,
		})
	}
	failures := make([]SyncFailureResponse, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, SyncFailureResponse{UserID: f.UserID, Username: f.Username, Error: f.Err.Error()})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"dry_run":  report.DryRun,
		"updated":  report.Updated,
		"changes":  changes,
		"failures": failures,
	})
}
