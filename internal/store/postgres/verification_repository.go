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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kitchenkonnect/kkauth/internal/id"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/verification"
)

// VerificationRepository implements verification.Repository
type VerificationRepository struct {
	db *DB
}

var _ verification.Repository = (*VerificationRepository)(nil)

// NewVerificationRepository creates a new verification repository
func NewVerificationRepository(db *DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

const requestColumns = `
	id, requester_id, requested_role, justification, status,
	reviewer_id, reviewed_at, created_at`

func scanRequest(row pgx.Row) (*verification.Request, error) {
	var req verification.Request
	var role, status string
	err := row.Scan(
		&req.ID, &req.RequesterID, &role, &req.Justification, &status,
		&req.ReviewerID, &req.ReviewedAt, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.RequestedRole = identity.Role(role)
	req.Status = verification.Status(status)
	return &req, nil
}

// Create creates a verification request
func (r *VerificationRepository) Create(ctx context.Context, req *verification.Request) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO verification_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		req.ID, req.RequesterID, string(req.RequestedRole), req.Justification, string(req.Status),
		req.ReviewerID, req.ReviewedAt, req.CreatedAt,
	)
	if err != nil {
		if pgErr, ok := pgError(err); ok && pgErr.Code == codeForeignKeyViolation {
			return identity.ErrUserNotFound
		}
		return fmt.Errorf("failed to create verification request: %w", err)
	}
	return nil
}

func (r *VerificationRepository) get(ctx context.Context, requestID, suffix string) (*verification.Request, error) {
	if !id.Valid(requestID) {
		return nil, verification.ErrRequestNotFound
	}
	req, err := scanRequest(r.db.q(ctx).QueryRow(ctx,
		`SELECT `+requestColumns+` FROM verification_requests WHERE id = $1`+suffix, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, verification.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}
	return req, nil
}

// GetByID retrieves a verification request
func (r *VerificationRepository) GetByID(ctx context.Context, requestID string) (*verification.Request, error) {
	return r.get(ctx, requestID, "")
}

// GetForUpdate retrieves a verification request and locks its row
func (r *VerificationRepository) GetForUpdate(ctx context.Context, requestID string) (*verification.Request, error) {
	return r.get(ctx, requestID, " FOR UPDATE")
}

// List returns requests newest first, optionally filtered by status
func (r *VerificationRepository) List(ctx context.Context, status verification.Status) ([]*verification.Request, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT `+requestColumns+`
		FROM verification_requests
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list verification requests: %w", err)
	}
	defer rows.Close()

	out := []*verification.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Update records a review on a pending request
func (r *VerificationRepository) Update(ctx context.Context, req *verification.Request) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE verification_requests
		SET status = $2, reviewer_id = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, req.ID, string(req.Status), req.ReviewerID, req.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to update verification request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, req.ID); err != nil {
			return err
		}
		return verification.ErrAlreadyReviewed
	}
	return nil
}
