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

// Package verification implements the reviewed path to elevated roles.
package verification

import (
	"context"
	"strings"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/apperr"
	"github.com/kitchenkonnect/kkauth/internal/identity"
)

var (
	ErrRequestNotFound   = apperr.New(apperr.KindNotFound, "verification request not found")
	ErrAlreadyReviewed   = apperr.New(apperr.KindConflict, "verification request has already been reviewed")
	ErrSelfReview        = apperr.New(apperr.KindAuthorization, "cannot review your own verification request")
	ErrInsufficientRank  = apperr.New(apperr.KindAuthorization, "reviewing requires admin rank 50 or higher")
	ErrInvalidDecision   = apperr.New(apperr.KindValidation, "status must be approved or rejected")
	ErrInvalidStatus     = apperr.New(apperr.KindValidation, "status must be pending, approved or rejected")
	ErrInvalidRole       = apperr.New(apperr.KindValidation, "requested_role must be nutritionist, admin or regulator")
	ErrJustificationSize = apperr.New(apperr.KindValidation, "justification is too long")
)

// MaxJustificationLength bounds the free-text justification.
const MaxJustificationLength = 4000

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus parses a status name. The empty string is returned unchanged
// and means "any status" to List.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case "", StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// Request asks for an elevated role. ReviewerID and ReviewedAt are set
// exactly when Status is no longer pending.
type Request struct {
	ID            string
	RequesterID   string
	RequestedRole identity.Role
	Justification string
	Status        Status
	ReviewerID    *string
	ReviewedAt    *time.Time
	CreatedAt     time.Time
}

// Repository persists verification requests.
type Repository interface {
	Create(ctx context.Context, req *Request) error

	// GetByID returns ErrRequestNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*Request, error)

	// GetForUpdate loads a request and locks it for the rest of the
	// transaction carried by ctx.
	GetForUpdate(ctx context.Context, id string) (*Request, error)

	// List returns requests newest first. An empty status lists all.
	List(ctx context.Context, status Status) ([]*Request, error)

	// Update writes a review. It only matches pending rows and returns
	// ErrAlreadyReviewed otherwise.
	Update(ctx context.Context, req *Request) error
}

// RoleApplier grants the requested role on approval.
type RoleApplier interface {
	ApplyVerifiedRole(ctx context.Context, userID string, role identity.Role) (*identity.User, error)
}
