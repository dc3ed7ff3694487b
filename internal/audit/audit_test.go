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

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
// Test Case ID: AUD-01
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"PASSWORD", true},
		{"token", true},
		{"refresh_token", true},
		{"secret", true},
		{"api_key", true},
		{"password_hash", true},
		{"credential", true},
		{"user_id", false},
		{"role", false},
		{"admin_rank", false},
		{"status", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.isSecret, isSecret(tt.key))
		})
	}
}

// TestPurpose: Validates that the in-memory audit logger records events and filters them by type.
// Scope: Unit Test
// Expected: Only events of the requested type are returned.
// Test Case ID: AUD-02
func TestAudit_MemoryLogger_FiltersByType(t *testing.T) {
	l := NewMemoryLogger()
	ctx := context.Background()

	l.Log(ctx, Event{Type: TypeLoginSuccess, ActorID: "u1"})
	l.Log(ctx, Event{Type: TypeRoleChanged, ActorID: "u2"})
	l.Log(ctx, Event{Type: TypeLoginSuccess, ActorID: "u3"})

	assert.Len(t, l.Events(), 3)
	logins := l.Events(TypeLoginSuccess)
	assert.Len(t, logins, 2)
	assert.Equal(t, "u3", logins[1].ActorID)
}
