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
	"fmt"

	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/identity"
)

// GroupRepository implements groups.Repository
type GroupRepository struct {
	db *DB
}

var _ groups.Repository = (*GroupRepository)(nil)

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// EnsureGroups creates any missing groups
func (r *GroupRepository) EnsureGroups(ctx context.Context, names ...string) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO groups (name)
		SELECT UNNEST($1::text[])
		ON CONFLICT (name) DO NOTHING
	`, names)
	if err != nil {
		return fmt.Errorf("failed to ensure groups: %w", err)
	}
	return nil
}

// Membership returns the user's groups sorted by name
func (r *GroupRepository) Membership(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT group_name FROM user_groups
		WHERE user_id = $1
		ORDER BY group_name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// SetMembership replaces the user's groups atomically
func (r *GroupRepository) SetMembership(ctx context.Context, userID string, names []string) error {
	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if _, err := q.Exec(ctx, `DELETE FROM user_groups WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to clear membership: %w", err)
		}
		_, err := q.Exec(ctx, `
			INSERT INTO user_groups (user_id, group_name)
			SELECT $1, UNNEST($2::text[])
			ON CONFLICT DO NOTHING
		`, userID, names)
		if err != nil {
			if pgErr, ok := pgError(err); ok && pgErr.Code == codeForeignKeyViolation {
				if pgErr.ConstraintName == "user_groups_user_id_fkey" {
					return identity.ErrUserNotFound
				}
				return groups.ErrUnknownGroup
			}
			return fmt.Errorf("failed to set membership: %w", err)
		}
		return nil
	})
}
