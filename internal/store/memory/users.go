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
	"strings"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	s *Store
}

var _ identity.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a new user repository
func NewUserRepository(s *Store) *UserRepository {
	return &UserRepository{s: s}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	defer r.s.lock(ctx)()

	for _, u := range r.s.data.users {
		if u.Username == user.Username {
			return identity.ErrUserAlreadyExists
		}
		if strings.EqualFold(u.Email, user.Email) {
			return identity.ErrEmailTaken
		}
	}
	r.s.data.users[user.ID] = *user
	return nil
}

// AddCredentials adds user credentials
func (r *UserRepository) AddCredentials(ctx context.Context, credentials *identity.Credentials) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.data.users[credentials.UserID]; !ok {
		return identity.ErrUserNotFound
	}
	r.s.data.credentials[credentials.UserID] = *credentials
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(_ context.Context, id string) (*identity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.data.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return &u, nil
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*identity.User, error) {
	return r.find(func(u identity.User) bool { return u.Username == username })
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	return r.find(func(u identity.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UserRepository) find(match func(identity.User) bool) (*identity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.data.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

// List returns all users ordered by creation time, then ID
func (r *UserRepository) List(_ context.Context) ([]*identity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	users := make([]*identity.User, 0, len(r.s.data.users))
	for _, u := range r.s.data.users {
		users = append(users, &u)
	}
	slices.SortFunc(users, func(a, b *identity.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return users, nil
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *identity.User) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.data.users[user.ID]; !ok {
		return identity.ErrUserNotFound
	}
	for _, u := range r.s.data.users {
		if u.ID != user.ID && strings.EqualFold(u.Email, user.Email) {
			return identity.ErrEmailTaken
		}
	}
	r.s.data.users[user.ID] = *user
	return nil
}

// UpdateLockout updates user lockout status
func (r *UserRepository) UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	defer r.s.lock(ctx)()

	u, ok := r.s.data.users[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	r.s.data.users[userID] = u
	return nil
}

// GetCredentials retrieves user credentials
func (r *UserRepository) GetCredentials(_ context.Context, userID string) (*identity.Credentials, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.data.credentials[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return &c, nil
}

// UpdatePassword updates user password
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	defer r.s.lock(ctx)()

	c, ok := r.s.data.credentials[userID]
	if !ok {
		return identity.ErrUserNotFound
	}
	c.PasswordHash = passwordHash
	c.UpdatedAt = time.Now()
	r.s.data.credentials[userID] = c
	return nil
}
