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

import "fmt"

// Normalize returns u with the privilege invariants applied. It is pure and
// idempotent and runs before every persist of a user record.
//
// Precedence:
//  1. superuser forces role=admin, staff, rank >= 100
//  2. role=admin forces staff; rank >= 100 implies superuser
//  3. role=regulator floors rank at 50
//
// Rank is never lowered here.
func Normalize(u User) User {
	if u.AdminRank < 0 {
		u.AdminRank = 0
	}

	if u.IsSuperuser {
		u.Role = RoleAdmin
		u.IsStaff = true
		u.AdminRank = max(u.AdminRank, RankAdminFloor)
	}

	switch u.Role {
	case RoleAdmin:
		u.IsStaff = true
		if u.AdminRank >= RankAdminFloor {
			u.IsSuperuser = true
		}
	case RoleRegulator:
		u.AdminRank = max(u.AdminRank, RankRegulatorFloor)
	}

	return u
}

// InvariantError describes a violated privilege invariant.
type InvariantError struct {
	Rule string
	User string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("user %s violates privilege invariant: %s", e.User, e.Rule)
}

// CheckInvariants returns the first privilege invariant u violates, if any.
func CheckInvariants(u User) error {
	fail := func(rule string) error { return &InvariantError{Rule: rule, User: u.ID} }

	switch {
	case !u.Role.Valid():
		return fail("role must be one of regular, nutritionist, admin, regulator")
	case u.AdminRank < 0:
		return fail("admin_rank must be non-negative")
	case u.Role == RoleAdmin && !u.IsStaff:
		return fail("role=admin requires staff")
	case u.IsSuperuser && (u.Role != RoleAdmin || !u.IsStaff || u.AdminRank < RankAdminFloor):
		return fail("superuser requires role=admin, staff and admin_rank >= 100")
	case u.Role == RoleAdmin && u.AdminRank >= RankAdminFloor && !u.IsSuperuser:
		return fail("role=admin with admin_rank >= 100 requires superuser")
	case u.Role == RoleRegulator && u.AdminRank < RankRegulatorFloor:
		return fail("role=regulator requires admin_rank >= 50")
	}
	return nil
}
