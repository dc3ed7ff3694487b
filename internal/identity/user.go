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

package identity

import (
	"context"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/apperr"
)

// Domain errors
var (
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "user not found")
	ErrUserAlreadyExists  = apperr.New(apperr.KindValidation, "a user with that username already exists")
	ErrEmailTaken         = apperr.New(apperr.KindValidation, "a user with that email already exists")
	ErrInvalidCredentials = apperr.New(apperr.KindAuthentication, "invalid credentials")
	ErrInvalidEmail       = apperr.New(apperr.KindValidation, "invalid email address")
	ErrInvalidUsername    = apperr.New(apperr.KindValidation, "username must be 1-150 characters of letters, digits and @/./+/-/_")
	ErrWeakPassword       = apperr.New(apperr.KindValidation, "password must be at least 8 characters")
	ErrAccountLocked      = apperr.New(apperr.KindAuthentication, "account is temporarily locked")
	ErrInvalidRole        = apperr.New(apperr.KindValidation, "invalid role")
	ErrInvalidRank        = apperr.New(apperr.KindValidation, "admin_rank must be a non-negative integer")
	ErrRankExceedsActor   = apperr.New(apperr.KindAuthorization, "cannot grant or modify a rank above your own")
	ErrInsufficientRank   = apperr.New(apperr.KindAuthorization, "insufficient admin rank")
	ErrInvariant          = apperr.New(apperr.KindInternal, "user record violates privilege invariants")
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// User represents a user identity and its privilege tier.
//
// Role, AdminRank, IsStaff and IsSuperuser are only ever persisted through
// Normalize, so the invariants checked by CheckInvariants hold for every
// stored record.
type User struct {
	ID                  string
	Username            string
	Email               string
	FirstName           string
	LastName            string
	Bio                 string
	IsActive            bool
	IsStaff             bool
	IsSuperuser         bool
	Role                Role
	AdminRank           int
	FailedLoginAttempts int
	LockedUntil         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Credentials represents user authentication credentials
type Credentials struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user identity.
	// Returns ErrUserAlreadyExists or ErrEmailTaken on a uniqueness conflict.
	Create(ctx context.Context, user *User) error

	// AddCredentials adds credentials for a user
	AddCredentials(ctx context.Context, credentials *Credentials) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns all users ordered by creation time
	List(ctx context.Context) ([]*User, error)

	// Update persists every mutable field of the user
	Update(ctx context.Context, user *User) error

	// UpdateLockout updates user lockout status
	UpdateLockout(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error

	// GetCredentials retrieves user credentials
	GetCredentials(ctx context.Context, userID string) (*Credentials, error)

	// UpdatePassword replaces the stored password hash
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// GroupSyncer mirrors a normalized user's role into group membership.
type GroupSyncer interface {
	SyncUser(ctx context.Context, user *User) error
}

// CredentialVerifier hashes and verifies passwords. The hashing scheme is
// delegated; PasswordHasher is the default argon2id implementation.
type CredentialVerifier interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}
