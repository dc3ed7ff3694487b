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

import "strings"

// Role is the coarse privilege category of a user.
type Role string

const (
	RoleRegular      Role = "regular"
	RoleNutritionist Role = "nutritionist"
	RoleAdmin        Role = "admin"
	RoleRegulator    Role = "regulator"
)

// Rank floors implied by a role.
const (
	RankRegulatorFloor = 50
	RankAdminFloor     = 100
)

// Roles lists every role in declaration order.
var Roles = []Role{RoleRegular, RoleNutritionist, RoleAdmin, RoleRegulator}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleRegular, RoleNutritionist, RoleAdmin, RoleRegulator:
		return true
	}
	return false
}

// Elevated reports whether r can only be obtained through review.
func (r Role) Elevated() bool {
	return r.Valid() && r != RoleRegular
}

// RankFloor returns the minimum admin rank implied by r.
func (r Role) RankFloor() int {
	switch r {
	case RoleAdmin:
		return RankAdminFloor
	case RoleRegulator:
		return RankRegulatorFloor
	default:
		return 0
	}
}

func (r Role) String() string { return string(r) }

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}
