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

package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/kitchenkonnect/kkauth/internal/verification"
)

// VerificationRepository implements verification.Repository
type VerificationRepository struct {
	s *Store
}

var _ verification.Repository = (*VerificationRepository)(nil)

// NewVerificationRepository creates a new verification repository
func NewVerificationRepository(s *Store) *VerificationRepository {
	return &VerificationRepository{s: s}
}

func (r *VerificationRepository) Create(ctx context.Context, req *verification.Request) error {
	defer r.s.lock(ctx)()

	r.s.data.requests[req.ID] = *req
	return nil
}

func (r *VerificationRepository) GetByID(_ context.Context, id string) (*verification.Request, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	req, ok := r.s.data.requests[id]
	if !ok {
		return nil, verification.ErrRequestNotFound
	}
	return &req, nil
}

// GetForUpdate is GetByID; transactions are already serialized.
func (r *VerificationRepository) GetForUpdate(ctx context.Context, id string) (*verification.Request, error) {
	return r.GetByID(ctx, id)
}

func (r *VerificationRepository) List(_ context.Context, status verification.Status) ([]*verification.Request, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*verification.Request{}
	for _, req := range r.s.data.requests {
		if status == "" || req.Status == status {
			out = append(out, &req)
		}
	}
	slices.SortFunc(out, func(a, b *verification.Request) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (r *VerificationRepository) Update(ctx context.Context, req *verification.Request) error {
	defer r.s.lock(ctx)()

	cur, ok := r.s.data.requests[req.ID]
	if !ok {
		return verification.ErrRequestNotFound
	}
	if cur.Status != verification.StatusPending {
		return verification.ErrAlreadyReviewed
	}
	r.s.data.requests[req.ID] = *req
	return nil
}
