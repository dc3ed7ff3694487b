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

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/identity"
)

// TestPurpose: Validates the human-readable sync report.
// Scope: Unit Test
// Expected: changed rows are starred and the summary wording follows dry-run mode.
// Test Case ID: SYN-01
func TestPrintReport(t *testing.T) {
	report := &groups.SyncReport{
		DryRun: true,
		Changes: []groups.Change{
			{Username: "alice", Role: identity.RoleRegulator, Before: []string{"users"}, After: []string{"regulators"}, Changed: true},
			{Username: "bob", Role: identity.RoleRegular, Before: []string{"users"}, After: []string{"users"}},
		},
		Updated: 1,
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "* alice")
	assert.Contains(t, out, "[users] -> [regulators]")
	assert.Contains(t, out, "  bob")
	assert.Contains(t, out, "2 users checked, would update 1")

	buf.Reset()
	report.DryRun = false
	printReport(&buf, report)
	assert.Contains(t, buf.String(), "updated 1")
}

// TestPurpose: Validates that per-user failures appear in the sync report.
// Scope: Unit Test
// Expected: each failure is listed with its error and counted in the summary.
// Test Case ID: SYN-02
func TestPrintReport_Failures(t *testing.T) {
	report := &groups.SyncReport{
		Changes: []groups.Change{
			{Username: "alice", Role: identity.RoleRegular, Before: []string{"users"}, After: []string{"users"}},
		},
		Failures: []groups.SyncFailure{{UserID: "u2", Username: "bob", Err: errors.New("connection reset")}},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "! bob")
	assert.Contains(t, out, "connection reset")
	assert.Contains(t, out, "2 users checked, updated 0, 1 failed")
}
