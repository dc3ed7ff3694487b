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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates each normalization rule in isolation.
// Scope: Unit Test
// Security: Privilege invariants
// Expected: derived fields follow the superuser > admin > regulator precedence.
// Test Case ID: PRV-01
func TestNormalize_Rules(t *testing.T) {
	tests := []struct {
		name string
		in   User
		want User
	}{
		{
			name: "superuser forces admin staff and rank 100",
			in:   User{IsSuperuser: true, Role: RoleRegular, AdminRank: 3},
			want: User{IsSuperuser: true, IsStaff: true, Role: RoleAdmin, AdminRank: 100},
		},
		{
			name: "superuser keeps a higher rank",
			in:   User{IsSuperuser: true, Role: RoleAdmin, AdminRank: 250},
			want: User{IsSuperuser: true, IsStaff: true, Role: RoleAdmin, AdminRank: 250},
		},
		{
			name: "admin implies staff",
			in:   User{Role: RoleAdmin, AdminRank: 10},
			want: User{IsStaff: true, Role: RoleAdmin, AdminRank: 10},
		},
		{
			name: "admin with rank 100 becomes superuser",
			in:   User{Role: RoleAdmin, AdminRank: 100},
			want: User{IsSuperuser: true, IsStaff: true, Role: RoleAdmin, AdminRank: 100},
		},
		{
			name: "regulator floors rank at 50",
			in:   User{Role: RoleRegulator, AdminRank: 0},
			want: User{Role: RoleRegulator, AdminRank: 50},
		},
		{
			name: "regulator keeps a higher rank",
			in:   User{Role: RoleRegulator, AdminRank: 70},
			want: User{Role: RoleRegulator, AdminRank: 70},
		},
		{
			name: "regular rank untouched",
			in:   User{Role: RoleRegular, AdminRank: 40},
			want: User{Role: RoleRegular, AdminRank: 40},
		},
		{
			name: "nutritionist rank untouched",
			in:   User{Role: RoleNutritionist, AdminRank: 0},
			want: User{Role: RoleNutritionist, AdminRank: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

// TestPurpose: Validates that Normalize is idempotent and always yields a record satisfying every invariant.
// Scope: Unit Test
// Security: Privilege invariants
// Expected: Normalize(Normalize(u)) == Normalize(u) and CheckInvariants passes for every combination.
// Test Case ID: PRV-02
func TestNormalize_IdempotentAndSound(t *testing.T) {
	ranks := []int{-1, 0, 1, 49, 50, 51, 99, 100, 101, 500}
	for _, role := range Roles {
		for _, rank := range ranks {
			for _, su := range []bool{false, true} {
				for _, staff := range []bool{false, true} {
					u := User{Role: role, AdminRank: rank, IsSuperuser: su, IsStaff: staff}
					once := Normalize(u)
					require.Equal(t, once, Normalize(once), "not idempotent for %+v", u)
					require.NoError(t, CheckInvariants(once), "invariant violated for %+v", u)
					require.GreaterOrEqual(t, once.AdminRank, max(rank, 0), "rank lowered for %+v", u)
				}
			}
		}
	}
}

// TestPurpose: Validates that CheckInvariants reports violations on unnormalized records.
// Scope: Unit Test
// Expected: each malformed record is rejected.
// Test Case ID: PRV-03
func TestCheckInvariants_Violations(t *testing.T) {
	bad := []User{
		{Role: "chef"},
		{Role: RoleRegular, AdminRank: -1},
		{Role: RoleAdmin},
		{Role: RoleRegular, IsSuperuser: true, IsStaff: true, AdminRank: 100},
		{Role: RoleAdmin, IsStaff: true, AdminRank: 100},
		{Role: RoleRegulator, AdminRank: 49},
	}
	for _, u := range bad {
		var invErr *InvariantError
		assert.ErrorAs(t, CheckInvariants(u), &invErr, "%+v", u)
	}
}

// TestPurpose: Validates role parsing and rank floors.
// Scope: Unit Test
// Expected: known roles parse case-insensitively; unknown roles fail.
// Test Case ID: PRV-04
func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Regulator ")
	require.NoError(t, err)
	assert.Equal(t, RoleRegulator, r)
	assert.Equal(t, 50, r.RankFloor())
	assert.Equal(t, 100, RoleAdmin.RankFloor())
	assert.Equal(t, 0, RoleNutritionist.RankFloor())
	assert.False(t, RoleRegular.Elevated())

	_, err = ParseRole("chef")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

// TestPurpose: Validates argon2id hashing round trip and rejection of malformed hashes.
// Scope: Unit Test
// Security: Credential storage
// Expected: correct password verifies, wrong password and garbage hashes do not.
// Test Case ID: PRV-05
func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(8*1024, 1, 1, 16, 32)

	hash, err := h.Hash("correct-horse")
	require.NoError(t, err)

	ok, err := h.Verify("correct-horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong-horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Verify("correct-horse", "not-a-hash")
	assert.Error(t, err)
}
