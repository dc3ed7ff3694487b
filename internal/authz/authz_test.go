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

package authz_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitchenkonnect/kkauth/internal/authz"
	"github.com/kitchenkonnect/kkauth/internal/identity"
)

func userWith(role identity.Role, rank int) *identity.User {
	u := identity.Normalize(identity.User{ID: "u-1", Role: role, AdminRank: rank, IsActive: true})
	return &u
}

// TestPurpose: Validates the minimum-rank evaluator at and around the regulator threshold.
// Scope: Unit Test
// Security: Privilege boundary enforcement
// Expected: rank 49 forbidden, rank 50 allowed, nil principal unauthenticated.
// Test Case ID: AUZ-01
func TestAuthz_HasMinRank(t *testing.T) {
	assert.Equal(t, authz.Forbidden, authz.HasMinRank(userWith(identity.RoleNutritionist, 49), 50))
	assert.Equal(t, authz.Allowed, authz.HasMinRank(userWith(identity.RoleNutritionist, 50), 50))
	assert.Equal(t, authz.Unauthenticated, authz.HasMinRank(nil, 50))
}

// TestPurpose: Validates that a non-positive rank requirement defaults to 1.
// Scope: Unit Test
// Expected: rank 0 forbidden, rank 1 allowed.
// Test Case ID: AUZ-02
func TestAuthz_HasMinRank_DefaultsToOne(t *testing.T) {
	assert.Equal(t, authz.Forbidden, authz.HasMinRank(userWith(identity.RoleRegular, 0), 0))
	assert.Equal(t, authz.Allowed, authz.HasMinRank(userWith(identity.RoleRegular, 1), 0))
	assert.Equal(t, authz.Forbidden, authz.HasMinRank(userWith(identity.RoleRegular, 0), -5))
}

// TestPurpose: Validates exact role matching.
// Scope: Unit Test
// Expected: only the matching role is allowed; admin does not imply regulator.
// Test Case ID: AUZ-03
func TestAuthz_HasRole(t *testing.T) {
	assert.Equal(t, authz.Allowed, authz.HasRole(userWith(identity.RoleRegulator, 0), identity.RoleRegulator))
	assert.Equal(t, authz.Forbidden, authz.HasRole(userWith(identity.RoleAdmin, 0), identity.RoleRegulator))
	assert.Equal(t, authz.Unauthenticated, authz.HasRole(nil, identity.RoleAdmin))
}

// TestPurpose: Validates that Evaluate requires every requirement and short-circuits on a nil principal.
// Scope: Unit Test
// Expected: combined role and rank requirements behave as a conjunction.
// Test Case ID: AUZ-04
func TestAuthz_Evaluate(t *testing.T) {
	reg := userWith(identity.RoleRegulator, 0)

	assert.Equal(t, authz.Allowed, authz.Evaluate(reg,
		authz.RequireRole(identity.RoleRegulator), authz.RequireMinRank(50)))
	assert.Equal(t, authz.Forbidden, authz.Evaluate(reg,
		authz.RequireRole(identity.RoleRegulator), authz.RequireMinRank(100)))
	assert.Equal(t, authz.Unauthenticated, authz.Evaluate(nil, authz.RequireMinRank(1)))
	assert.Equal(t, authz.Allowed, authz.Evaluate(reg))
}

// TestPurpose: Validates the decision to HTTP status mapping.
// Scope: Unit Test
// Expected: 401, 403, 200.
// Test Case ID: AUZ-05
func TestAuthz_Decision_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, authz.Unauthenticated.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, authz.Forbidden.HTTPStatus())
	assert.Equal(t, http.StatusOK, authz.Allowed.HTTPStatus())
	assert.True(t, authz.Allowed.Allowed())
	assert.Equal(t, "forbidden", authz.Forbidden.String())
}
