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

// Package groups mirrors each user's role into exactly one named group.
package groups

import (
	"context"
	"log/slog"
	"slices"

	"github.com/kitchenkonnect/kkauth/internal/apperr"
	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
)

// Group names
const (
	Admins     = "admins"
	Regulators = "regulators"
	Users      = "users"
)

// ErrUnknownGroup is returned when membership names a group that does not exist.
var ErrUnknownGroup = apperr.New(apperr.KindInternal, "unknown group")

// All lists every managed group.
var All = []string{Admins, Regulators, Users}

// ForRole returns the group a role maps to.
func ForRole(r identity.Role) string {
	switch r {
	case identity.RoleAdmin:
		return Admins
	case identity.RoleRegulator:
		return Regulators
	default:
		return Users
	}
}

// Repository persists group membership.
type Repository interface {
	// EnsureGroups creates any missing groups. Safe to call concurrently.
	EnsureGroups(ctx context.Context, names ...string) error

	// Membership returns the user's groups sorted by name.
	Membership(ctx context.Context, userID string) ([]string, error)

	// SetMembership replaces the user's groups.
	SetMembership(ctx context.Context, userID string, groups []string) error
}

// UserLister is the subset of identity.UserRepository used by SyncAll.
type UserLister interface {
	List(ctx context.Context) ([]*identity.User, error)
	GetByUsername(ctx context.Context, username string) (*identity.User, error)
}

// Change describes the membership of one user before and after a sync.
type Change struct {
	UserID   string
	Username string
	Role     identity.Role
	Before   []string
	After    []string
	Changed  bool
}

// SyncOptions narrows a bulk sync.
type SyncOptions struct {
	Username string
	DryRun   bool
}

// SyncFailure is a user whose membership could not be read or repaired.
type SyncFailure struct {
	UserID   string
	Username string
	Err      error
}

// SyncReport summarizes a bulk sync.
type SyncReport struct {
	DryRun   bool
	Changes  []Change
	Updated  int
	Failures []SyncFailure
}

// Mirror keeps group membership equal to the singleton set for the user's role.
type Mirror struct {
	repo        Repository
	users       UserLister
	auditLogger audit.Logger
}

var _ identity.GroupSyncer = (*Mirror)(nil)

// NewMirror creates a mirror. users is only needed by SyncAll.
func NewMirror(repo Repository, users UserLister, auditLogger audit.Logger) *Mirror {
	return &Mirror{repo: repo, users: users, auditLogger: auditLogger}
}

// Plan computes the change Sync would make without applying it.
func (m *Mirror) Plan(ctx context.Context, u *identity.User) (*Change, error) {
	before, err := m.repo.Membership(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	after := []string{ForRole(u.Role)}

	return &Change{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		Before:   before,
		After:    after,
		Changed:  !slices.Equal(before, after),
	}, nil
}

// Sync replaces u's membership with the group for its role. Idempotent;
// concurrent syncs of one user resolve last-writer-wins.
func (m *Mirror) Sync(ctx context.Context, u *identity.User) (*Change, error) {
	if err := m.repo.EnsureGroups(ctx, All...); err != nil {
		return nil, err
	}

	change, err := m.Plan(ctx, u)
	if err != nil {
		return nil, err
	}
	if !change.Changed {
		return change, nil
	}

	if err := m.repo.SetMembership(ctx, u.ID, change.After); err != nil {
		return nil, err
	}

	if m.auditLogger != nil {
		m.auditLogger.Log(ctx, audit.Event{
			Type:      audit.TypeGroupsSynced,
			ActorID:   audit.ActorSystem,
			SubjectID: u.ID,
			Resource:  "groups",
			Metadata: map[string]any{
				audit.AttrRole:   string(u.Role),
				audit.AttrGroups: change.After,
			},
		})
	}
	slog.DebugContext(ctx, "group membership synced",
		logger.UserID(u.ID),
		logger.Role(string(u.Role)),
		logger.Groups(change.After),
	)
	return change, nil
}

// SyncUser implements identity.GroupSyncer.
func (m *Mirror) SyncUser(ctx context.Context, u *identity.User) error {
	_, err := m.Sync(ctx, u)
	return err
}

// SyncAll syncs every user in creation order, or only opts.Username.
// With DryRun nothing is written. A per-user failure is recorded in the
// report and the sync moves on.
func (m *Mirror) SyncAll(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	var users []*identity.User
	if opts.Username != "" {
		u, err := m.users.GetByUsername(ctx, opts.Username)
		if err != nil {
			return nil, err
		}
		users = []*identity.User{u}
	} else {
		var err error
		if users, err = m.users.List(ctx); err != nil {
			return nil, err
		}
	}

	report := &SyncReport{DryRun: opts.DryRun}
	for _, u := range users {
		var change *Change
		var err error
		if opts.DryRun {
			change, err = m.Plan(ctx, u)
		} else {
			change, err = m.Sync(ctx, u)
		}
		if err != nil {
			slog.ErrorContext(ctx, "group sync failed",
				logger.UserID(u.ID),
				logger.Error(err),
			)
			report.Failures = append(report.Failures, SyncFailure{UserID: u.ID, Username: u.Username, Err: err})
			continue
		}
		if change.Changed {
			report.Updated++
		}
		report.Changes = append(report.Changes, *change)
	}
	return report, nil
}
