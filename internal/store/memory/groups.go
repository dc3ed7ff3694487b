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
	"context"
	"slices"

	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/identity"
)

// GroupRepository implements groups.Repository
type GroupRepository struct {
	s *Store
}

var _ groups.Repository = (*GroupRepository)(nil)

// NewGroupRepository creates a new group repository
func NewGroupRepository(s *Store) *GroupRepository {
	return &GroupRepository{s: s}
}

// EnsureGroups creates any missing groups
func (r *GroupRepository) EnsureGroups(ctx context.Context, names ...string) error {
	defer r.s.lock(ctx)()

	for _, n := range names {
		r.s.data.groups[n] = struct{}{}
	}
	return nil
}

// Membership returns the user's groups sorted by name
func (r *GroupRepository) Membership(_ context.Context, userID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, ok := r.s.data.users[userID]; !ok {
		return nil, identity.ErrUserNotFound
	}
	m := slices.Clone(r.s.data.members[userID])
	slices.Sort(m)
	return m, nil
}

// SetMembership replaces the user's groups
func (r *GroupRepository) SetMembership(ctx context.Context, userID string, names []string) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.data.users[userID]; !ok {
		return identity.ErrUserNotFound
	}
	for _, n := range names {
		if _, ok := r.s.data.groups[n]; !ok {
			return groups.ErrUnknownGroup
		}
	}
	m := slices.Clone(names)
	slices.Sort(m)
	r.s.data.members[userID] = slices.Compact(m)
	return nil
}
