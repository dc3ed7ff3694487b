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

// Package authz evaluates role and rank requirements against a principal.
package authz

import (
	"net/http"

	"github.com/kitchenkonnect/kkauth/internal/identity"
)

// Decision is the outcome of a permission check.
type Decision int

const (
	Unauthenticated Decision = iota
	Forbidden
	Allowed
)

// DefaultMinRank is used when a rank requirement is zero or negative.
const DefaultMinRank = 1

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthenticated"
	}
}

// Allowed reports whether d grants access.
func (d Decision) Allowed() bool { return d == Allowed }

// HTTPStatus maps d to the response status used at the boundary.
func (d Decision) HTTPStatus() int {
	switch d {
	case Allowed:
		return http.StatusOK
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// HasRole allows principals whose role equals role. A nil principal is
// unauthenticated.
func HasRole(p *identity.User, role identity.Role) Decision {
	if p == nil {
		return Unauthenticated
	}
	if p.Role != role {
		return Forbidden
	}
	return Allowed
}

// HasMinRank allows principals whose admin rank is at least minRank.
func HasMinRank(p *identity.User, minRank int) Decision {
	if p == nil {
		return Unauthenticated
	}
	if minRank <= 0 {
		minRank = DefaultMinRank
	}
	if p.AdminRank < minRank {
		return Forbidden
	}
	return Allowed
}

// Requirement is a single predicate evaluated against a principal.
type Requirement interface {
	Check(p *identity.User) Decision
}

type roleRequirement identity.Role

func (r roleRequirement) Check(p *identity.User) Decision {
	return HasRole(p, identity.Role(r))
}

type rankRequirement int

func (r rankRequirement) Check(p *identity.User) Decision {
	return HasMinRank(p, int(r))
}

// RequireRole requires an exact role.
func RequireRole(role identity.Role) Requirement { return roleRequirement(role) }

// RequireMinRank requires an admin rank of at least n.
func RequireMinRank(n int) Requirement { return rankRequirement(n) }

// Evaluate allows p only if every requirement allows it.
func Evaluate(p *identity.User, reqs ...Requirement) Decision {
	if p == nil {
		return Unauthenticated
	}
	for _, r := range reqs {
		if d := r.Check(p); d != Allowed {
			return d
		}
	}
	return Allowed
}
