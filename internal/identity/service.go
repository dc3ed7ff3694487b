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
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/id"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
	"github.com/kitchenkonnect/kkauth/internal/observability/tracing"
	"github.com/kitchenkonnect/kkauth/internal/store"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

// Service provides identity-related business logic
type Service struct {
	repo               UserRepository
	verifier           CredentialVerifier
	groups             GroupSyncer
	tx                 store.Transactor
	auditLogger        audit.Logger
	instruments        *metrics.Instruments
	lockoutMaxAttempts int
	lockoutDuration    time.Duration
	now                func() time.Time
}

// NewService creates a new identity service. groups may be nil, in which
// case no membership mirror runs after a persist.
func NewService(
	repo UserRepository,
	verifier CredentialVerifier,
	groups GroupSyncer,
	tx store.Transactor,
	auditLogger audit.Logger,
	instruments *metrics.Instruments,
	lockoutMaxAttempts int,
	lockoutDuration time.Duration,
) *Service {
	if instruments == nil {
		instruments = metrics.Noop()
	}
	return &Service{
		repo:               repo,
		verifier:           verifier,
		groups:             groups,
		tx:                 tx,
		auditLogger:        auditLogger,
		instruments:        instruments,
		lockoutMaxAttempts: lockoutMaxAttempts,
		lockoutDuration:    lockoutDuration,
		now:                time.Now,
	}
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates a regular user with password credentials.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	ctx, span := tracing.Start(ctx, "identity.Register")
	var err error
	defer func() { tracing.End(span, err) }()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if !usernamePattern.MatchString(in.Username) {
		err = ErrInvalidUsername
		return nil, err
	}
	if !isValidEmail(in.Email) {
		err = ErrInvalidEmail
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		err = ErrWeakPassword
		return nil, err
	}

	hash, err := s.verifier.Hash(in.Password)
	if err != nil {
		err = fmt.Errorf("failed to hash password: %w", err)
		return nil, err
	}

	now := s.now()
	user := &User{
		ID:        id.NewUUIDv7(),
		Username:  in.Username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		IsActive:  true,
		Role:      RoleRegular,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByUsername(ctx, user.Username); err == nil {
			return ErrUserAlreadyExists
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		if _, err := s.repo.GetByEmail(ctx, user.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}

		if err := s.save(ctx, user, true); err != nil {
			return err
		}
		return s.repo.AddCredentials(ctx, &Credentials{
			UserID:       user.ID,
			PasswordHash: hash,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeUserRegistered,
		ActorID:   user.ID,
		SubjectID: user.ID,
		Resource:  "user",
		Metadata:  map[string]any{audit.AttrUsername: user.Username},
	})

	return user, nil
}

// Authenticate checks a username (or email, when login contains '@') and
// password. Unknown users, wrong passwords and inactive accounts are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	ctx, span := tracing.Start(ctx, "identity.Authenticate")
	user, err := s.authenticate(ctx, login, password)
	tracing.End(span, err)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.instruments.Logins.Add(ctx, 1, metrics.Outcome(outcome))
	return user, err
}

func (s *Service) authenticate(ctx context.Context, login, password string) (*User, error) {
	login = strings.TrimSpace(login)

	var user *User
	var err error
	if strings.Contains(login, "@") {
		user, err = s.repo.GetByEmail(ctx, login)
	} else {
		user, err = s.repo.GetByUsername(ctx, login)
	}
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	if user.LockedUntil != nil && user.LockedUntil.After(s.now()) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "locked_out"},
		})
		return nil, ErrAccountLocked
	}

	credentials, err := s.repo.GetCredentials(ctx, user.ID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	valid, err := s.verifier.Verify(password, credentials.PasswordHash)
	if err != nil || !valid {
		attempts := user.FailedLoginAttempts + 1
		var lockedUntil *time.Time

		if s.lockoutMaxAttempts > 0 && attempts >= s.lockoutMaxAttempts {
			until := s.now().Add(s.lockoutDuration)
			lockedUntil = &until
			s.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeUserLocked,
				ActorID:  user.ID,
				Resource: "login",
				Metadata: map[string]any{audit.AttrAttempts: attempts},
			})
		}

		if uerr := s.repo.UpdateLockout(ctx, user.ID, attempts, lockedUntil); uerr != nil {
			slog.WarnContext(ctx, "failed to record failed login", logger.UserID(user.ID), logger.Error(uerr))
		}

		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{
				audit.AttrReason:   "invalid_password",
				audit.AttrAttempts: attempts,
			},
		})
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "inactive"},
		})
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.repo.UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			slog.WarnContext(ctx, "failed to reset lockout", logger.UserID(user.ID), logger.Error(err))
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: "login",
	})

	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// GetByUsername retrieves a user by username
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// ListUsers returns every user ordered by creation time.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// ProfileInput holds optional profile changes. Nil fields are left alone.
type ProfileInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Bio       *string
}

// UpdateProfile updates user profile information. Privilege fields are
// never touched here.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*User, error) {
	var user *User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		if in.Email != nil && *in.Email != u.Email {
			email := strings.TrimSpace(*in.Email)
			if !isValidEmail(email) {
				return ErrInvalidEmail
			}
			if other, err := s.repo.GetByEmail(ctx, email); err == nil && other.ID != u.ID {
				return ErrEmailTaken
			} else if err != nil && !errors.Is(err, ErrUserNotFound) {
				return err
			}
			u.Email = email
		}
		if in.FirstName != nil {
			u.FirstName = *in.FirstName
		}
		if in.LastName != nil {
			u.LastName = *in.LastName
		}
		if in.Bio != nil {
			u.Bio = *in.Bio
		}

		user = u
		return s.save(ctx, u, false)
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeProfileUpdated,
		ActorID:   user.ID,
		SubjectID: user.ID,
		Resource:  "user",
	})
	return user, nil
}

// ChangePassword changes user password
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	credentials, err := s.repo.GetCredentials(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := s.verifier.Verify(oldPassword, credentials.PasswordHash)
	if err != nil || !valid {
		return ErrInvalidCredentials
	}

	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	newHash, err := s.verifier.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.repo.UpdatePassword(ctx, userID, newHash)
}

// AdminUpdateInput is an administrative change of role and rank.
type AdminUpdateInput struct {
	Role      *Role
	AdminRank *int
}

// AdminUpdate changes the role and/or rank of another user on behalf of
// actor. Leaving the admin role clears superuser and staff. A role change
// without an explicit rank resets the rank to the new role's floor.
func (s *Service) AdminUpdate(ctx context.Context, actor *User, userID string, in AdminUpdateInput) (*User, error) {
	ctx, span := tracing.Start(ctx, "identity.AdminUpdate")
	var err error
	defer func() { tracing.End(span, err) }()

	if actor == nil || actor.AdminRank < RankRegulatorFloor {
		err = ErrInsufficientRank
		return nil, err
	}
	if in.Role != nil && !in.Role.Valid() {
		err = ErrInvalidRole
		return nil, err
	}
	if in.AdminRank != nil && *in.AdminRank < 0 {
		err = ErrInvalidRank
		return nil, err
	}

	var before, after User
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		before = *u

		if u.AdminRank > actor.AdminRank {
			return ErrRankExceedsActor
		}

		if in.Role != nil && *in.Role != u.Role {
			if u.Role == RoleAdmin {
				u.IsSuperuser = false
				u.IsStaff = false
			}
			u.Role = *in.Role
			if in.AdminRank == nil {
				u.AdminRank = u.Role.RankFloor()
			}
		}
		if in.AdminRank != nil {
			u.AdminRank = *in.AdminRank
			if u.AdminRank < RankAdminFloor {
				u.IsSuperuser = false
			}
		}

		if Normalize(*u).AdminRank > actor.AdminRank {
			return ErrRankExceedsActor
		}

		if err := s.save(ctx, u, false); err != nil {
			return err
		}
		after = *u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeRoleChanged,
		ActorID:   actor.ID,
		SubjectID: after.ID,
		Resource:  "user",
		Metadata: map[string]any{
			audit.AttrOldRole: string(before.Role),
			audit.AttrRole:    string(after.Role),
			audit.AttrOldRank: before.AdminRank,
			audit.AttrRank:    after.AdminRank,
		},
	})
	return &after, nil
}

// ApplyVerifiedRole grants role to a user after an approved verification.
// The rank is raised to the role's floor and never lowered.
func (s *Service) ApplyVerifiedRole(ctx context.Context, userID string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var user *User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		u.Role = role
		u.AdminRank = max(u.AdminRank, role.RankFloor())
		if role != RoleAdmin {
			u.IsSuperuser = false
			u.IsStaff = false
		}

		user = u
		return s.save(ctx, u, false)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// save normalizes u and persists it in the caller's transaction. The group
// mirror runs after commit and its failure never fails the persist.
func (s *Service) save(ctx context.Context, u *User, create bool) error {
	n := Normalize(*u)
	if err := CheckInvariants(n); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	n.UpdatedAt = s.now()
	*u = n

	var err error
	if create {
		err = s.repo.Create(ctx, u)
	} else {
		err = s.repo.Update(ctx, u)
	}
	if err != nil {
		return err
	}

	if s.groups != nil {
		snapshot := *u
		store.AfterCommit(ctx, func(ctx context.Context) {
			s.mirror(ctx, &snapshot)
		})
	}
	return nil
}

func (s *Service) mirror(ctx context.Context, u *User) {
	if err := s.groups.SyncUser(ctx, u); err != nil {
		s.instruments.GroupSyncFailures.Add(ctx, 1)
		slog.ErrorContext(ctx, "group mirror failed",
			logger.Component("identity"),
			logger.UserID(u.ID),
			logger.Role(string(u.Role)),
			logger.Error(err),
		)
	}
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
