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
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event types
const (
	TypeUserRegistered        = "user_registered"
	TypeLoginSuccess          = "login_success"
	TypeLoginFailed           = "login_failed"
	TypeUserLocked            = "user_locked"
	TypeLogout                = "logout"
	TypeTokenIssued           = "token_issued"
	TypeTokenRotated          = "token_rotated"
	TypeTokenRevoked          = "token_revoked"
	TypeTokenReplay           = "token_replay_detected"
	TypeProfileUpdated        = "profile_updated"
	TypeRoleChanged           = "role_changed"
	TypeGroupsSynced          = "groups_synced"
	TypeVerificationSubmitted = "verification_submitted"
	TypeVerificationReviewed  = "verification_reviewed"
	TypeSuperuserBootstrap    = "superuser_bootstrap"
)

// Metadata attribute keys
const (
	AttrReason    = "reason"
	AttrAttempts  = "attempts"
	AttrRole      = "role"
	AttrOldRole   = "old_role"
	AttrRank      = "admin_rank"
	AttrOldRank   = "old_admin_rank"
	AttrGroups    = "groups"
	AttrStatus    = "status"
	AttrRequestID = "verification_id"
	AttrFamilyID  = "family_id"
	AttrUsername  = "username"
)

// ActorSystem identifies actions taken by the process itself (bootstrap, CLI).
const ActorSystem = "system"

// Event represents an auditable action
type Event struct {
	Type      string
	ActorID   string
	SubjectID string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.SubjectID != "" {
		attrs = append(attrs, slog.String("subject_id", event.SubjectID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// MemoryLogger keeps events in memory. Used by tests and the sync CLI summary.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryLogger creates an empty in-memory audit logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log records an audit event
func (l *MemoryLogger) Log(_ context.Context, event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (l *MemoryLogger) Events(types ...string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if len(types) == 0 || contains(types, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "hash", "credential"}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
