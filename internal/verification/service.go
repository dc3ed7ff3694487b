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

package verification

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/id"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
	"github.com/kitchenkonnect/kkauth/internal/observability/tracing"
	"github.com/kitchenkonnect/kkauth/internal/store"
)

// Service runs the submit/review workflow.
type Service struct {
	repo        Repository
	roles       RoleApplier
	tx          store.Transactor
	auditLogger audit.Logger
	instruments *metrics.Instruments
	now         func() time.Time
}

// NewService creates a verification service.
func NewService(repo Repository, roles RoleApplier, tx store.Transactor, auditLogger audit.Logger, instruments *metrics.Instruments) *Service {
	if instruments == nil {
		instruments = metrics.Noop()
	}
	return &Service{
		repo:        repo,
		roles:       roles,
		tx:          tx,
		auditLogger: auditLogger,
		instruments: instruments,
		now:         time.Now,
	}
}

// Submit files a pending request for requesterID. The subject is always
// the caller.
func (s *Service) Submit(ctx context.Context, requesterID string, role identity.Role, justification string) (*Request, error) {
	if !role.Elevated() {
		return nil, ErrInvalidRole
	}
	justification = strings.TrimSpace(justification)
	if len(justification) > MaxJustificationLength {
		return nil, ErrJustificationSize
	}

	req := &Request{
		ID:            id.NewUUIDv7(),
		RequesterID:   requesterID,
		RequestedRole: role,
		Justification: justification,
		Status:        StatusPending,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeVerificationSubmitted,
		ActorID:   requesterID,
		SubjectID: requesterID,
		Resource:  "verification_request",
		Metadata: map[string]any{
			audit.AttrRequestID: req.ID,
			audit.AttrRole:      string(role),
		},
	})
	return req, nil
}

// SubmitAtRegistration files a request for the role chosen at sign-up.
// A blank or regular desired role files nothing and returns nil.
func (s *Service) SubmitAtRegistration(ctx context.Context, userID, desiredRole, justification string) (*Request, error) {
	if strings.TrimSpace(desiredRole) == "" {
		return nil, nil
	}
	role, err := identity.ParseRole(desiredRole)
	if err != nil {
		return nil, ErrInvalidRole
	}
	if role == identity.RoleRegular {
		return nil, nil
	}
	return s.Submit(ctx, userID, role, justification)
}

// List returns requests, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]*Request, error) {
	return s.repo.List(ctx, status)
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

// Review approves or rejects a pending request. The status transition and,
// on approval, the role grant commit together or not at all. An approval
// may not leave the requester ranked above the reviewer.
func (s *Service) Review(ctx context.Context, reviewer *identity.User, requestID string, decision Status) (*Request, error) {
	ctx, span := tracing.Start(ctx, "verification.Review")
	var err error
	defer func() { tracing.End(span, err) }()

	if reviewer == nil || reviewer.AdminRank < identity.RankRegulatorFloor {
		err = ErrInsufficientRank
		return nil, err
	}
	if decision != StatusApproved && decision != StatusRejected {
		err = ErrInvalidDecision
		return nil, err
	}

	var reviewed *Request
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrAlreadyReviewed
		}
		if req.RequesterID == reviewer.ID {
			return ErrSelfReview
		}

		now := s.now()
		reviewerID := reviewer.ID
		req.Status = decision
		req.ReviewerID = &reviewerID
		req.ReviewedAt = &now

		if err := s.repo.Update(ctx, req); err != nil {
			return err
		}

		if decision == StatusApproved {
			granted, err := s.roles.ApplyVerifiedRole(ctx, req.RequesterID, req.RequestedRole)
			if err != nil {
				return err
			}
			if granted.AdminRank > reviewer.AdminRank {
				return identity.ErrRankExceedsActor
			}
		}

		reviewed = req
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.instruments.VerificationReviews.Add(ctx, 1, metrics.Outcome(string(decision)))
	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeVerificationReviewed,
		ActorID:   reviewer.ID,
		SubjectID: reviewed.RequesterID,
		Resource:  "verification_request",
		Metadata: map[string]any{
			audit.AttrRequestID: reviewed.ID,
			audit.AttrRole:      string(reviewed.RequestedRole),
			audit.AttrStatus:    string(decision),
		},
	})
	slog.InfoContext(ctx, "verification request reviewed",
		logger.VerificationID(reviewed.ID),
		logger.UserID(reviewed.RequesterID),
		logger.Role(string(reviewed.RequestedRole)),
	)
	return reviewed, nil
}
