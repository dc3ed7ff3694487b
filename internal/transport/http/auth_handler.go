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
	"net/http"
	"strings"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/apperr"
	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/token"
)

var errMissingLogin = apperr.New(apperr.KindValidation, "username and password are required")

// UserResponse is the public view of a user. Privilege fields are read-only.
type UserResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Bio         string    `json:"bio"`
	Role        string    `json:"role"`
	AdminRank   int       `json:"admin_rank"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	IsActive    bool      `json:"is_active"`
	DateJoined  time.Time `json:"date_joined"`
}

func newUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Bio:         u.Bio,
		Role:        u.Role.String(),
		AdminRank:   u.AdminRank,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		IsActive:    u.IsActive,
		DateJoined:  u.CreatedAt,
	}
}

// TokenResponse carries an access credential and, for body delivery, its refresh partner.
type TokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// RegisterRequest represents registration data
type RegisterRequest struct {
	Username            string `json:"username"`
	Email               string `json:"email"`
	Password            string `json:"password"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	DesiredRole         string `json:"desired_role"`
	Justification       string `json:"justification"`
	VerificationMessage string `json:"verification_message"`
}

// RegisterResponse is returned on successful registration. Token mirrors
// Access for clients that read the older field name.
type RegisterResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
	Access   string `json:"access"`
}

// Register creates a user, files a verification request for an elevated
// desired role, and issues the first credential pair, all in one transaction.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	justification := req.Justification
	if justification == "" {
		justification = req.VerificationMessage
	}

	var (
		user *identity.User
		pair *token.Pair
	)
	err := h.tx.WithinTx(r.Context(), func(ctx context.Context) error {
		var err error
		user, err = h.identityService.Register(ctx, identity.RegisterInput{
			Username:  req.Username,
			Email:     req.Email,
			Password:  req.Password,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		})
		if err != nil {
			return err
		}
		if _, err = h.verificationService.SubmitAtRegistration(ctx, user.ID, req.DesiredRole, justification); err != nil {
			return err
		}
		pair, err = h.issuer.Issue(ctx, user.ID)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.sessions.Start(w, pair)
	respondJSON(w, http.StatusCreated, RegisterResponse{
		ID:       user.ID,
		Username: user.Username,
		Token:    pair.Access,
		Access:   pair.Access,
	})
}

// LoginRequest represents login credentials. Username may also be an email.
// Cookie set to false asks for body delivery of the refresh credential.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Cookie   *bool  `json:"cookie"`
}

// Login authenticates and issues a credential pair. Browsers get the refresh
// credential in the cookie; ?delivery=body returns it in the response.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	login := strings.TrimSpace(req.Username)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}
	if login == "" || req.Password == "" {
		respondError(w, r, errMissingLogin)
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), login, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	pair, err := h.issuer.Issue(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if r.URL.Query().Get("delivery") == "body" || (req.Cookie != nil && !*req.Cookie) {
		respondJSON(w, http.StatusOK, TokenResponse{Access: pair.Access, Refresh: pair.Refresh})
		return
	}

	h.sessions.Start(w, pair)
	respondJSON(w, http.StatusOK, TokenResponse{Access: pair.Access})
}

// RefreshRequest optionally carries the refresh credential in the body.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// Refresh rotates the refresh credential from the body or the cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.sessions.Refresh(r.Context(), w, r, req.Refresh)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TokenResponse{Access: res.Access, Refresh: res.Refresh})
}

// RefreshNonCookie rotates a body-supplied refresh credential for clients
// that hold no cookie.
func (h *Handler) RefreshNonCookie(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.sessions.RefreshNonCookie(r.Context(), r, req.Refresh)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TokenResponse{Access: res.Access, Refresh: res.Refresh})
}

// Logout revokes the presented refresh credential and clears the cookie.
// It always answers 204.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	_ = decodeJSON(r, &req, true)

	h.sessions.End(r.Context(), w, r, req.Refresh)

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		Resource:  "session",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	w.WriteHeader(http.StatusNoContent)
}

// CSRF ensures a CSRF cookie and returns its value.
func (h *Handler) CSRF(w http.ResponseWriter, r *http.Request) {
	tok, err := h.sessions.EnsureCSRF(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"csrfToken": tok})
}

// GetCurrentUser returns the authenticated user.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newUserResponse(GetUser(r.Context())))
}

// ProfileRequest holds optional profile changes. Role and rank are not
// accepted here.
type ProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Bio       *string `json:"bio"`
}

// UpdateProfile updates the caller's profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.identityService.UpdateProfile(r.Context(), GetUserID(r.Context()), identity.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Bio:       req.Bio,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newUserResponse(user))
}

// ChangePasswordRequest represents password change data
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword changes the caller's password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.identityService.ChangePassword(r.Context(), GetUserID(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "password changed successfully",
	})
}
