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

package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
)

// ledger applies single-use rotation and family revocation on top of a
// Denylist. Both backends share it.
type ledger struct {
	denylist    Denylist
	auditLogger audit.Logger
	instruments *metrics.Instruments
	backend     string
	now         func() time.Time
	refreshTTL  time.Duration
}

// newLedger expects opts with defaults applied.
func newLedger(denylist Denylist, auditLogger audit.Logger, instruments *metrics.Instruments, backend string, opts Options) ledger {
	if instruments == nil {
		instruments = metrics.Noop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewSlogLogger()
	}
	return ledger{
		denylist:    denylist,
		auditLogger: auditLogger,
		instruments: instruments,
		backend:     backend,
		now:         opts.Now,
		refreshTTL:  opts.RefreshTTL,
	}
}

// familyExpiry is when a family entry may be purged. The presented
// credential may be an old one; successors minted up to now can outlive it.
func (l ledger) familyExpiry(rev Revocation) time.Time {
	horizon := l.now().Add(l.refreshTTL)
	if rev.ExpiresAt.After(horizon) {
		return rev.ExpiresAt
	}
	return horizon
}

// consume marks rev.TokenID as used. Only the first caller succeeds; a
// later presentation of the same credential is a replay and revokes the
// whole family.
func (l ledger) consume(ctx context.Context, rev Revocation) error {
	revoked, err := l.denylist.IsFamilyRevoked(ctx, rev.FamilyID)
	if err != nil {
		l.instruments.TokenRotations.Add(ctx, 1, metrics.Outcome("error"))
		return err
	}
	if revoked {
		l.instruments.TokenRotations.Add(ctx, 1, metrics.Outcome("family_revoked"))
		return ErrInvalidRefreshToken
	}

	won, err := l.denylist.Revoke(ctx, rev)
	if err != nil {
		l.instruments.TokenRotations.Add(ctx, 1, metrics.Outcome("error"))
		return err
	}
	if !won {
		l.instruments.TokenRotations.Add(ctx, 1, metrics.Outcome("replay"))
		if err := l.denylist.RevokeFamily(ctx, rev.FamilyID, l.familyExpiry(rev)); err != nil {
			slog.ErrorContext(ctx, "failed to revoke token family after replay",
				logger.TokenFamily(rev.FamilyID),
				logger.Error(err),
			)
		}
		l.auditLogger.Log(ctx, audit.Event{
			Type:      audit.TypeTokenReplay,
			ActorID:   rev.UserID,
			SubjectID: rev.UserID,
			Resource:  "refresh_token",
			Metadata:  map[string]any{audit.AttrFamilyID: rev.FamilyID},
		})
		return ErrInvalidRefreshToken
	}

	l.instruments.TokenRotations.Add(ctx, 1, metrics.Outcome("success"))
	l.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeTokenRotated,
		ActorID:   rev.UserID,
		SubjectID: rev.UserID,
		Resource:  "refresh_token",
		Metadata:  map[string]any{audit.AttrFamilyID: rev.FamilyID},
	})
	return nil
}

// revoke denylists rev and its family. Used by logout.
func (l ledger) revoke(ctx context.Context, rev Revocation) error {
	if _, err := l.denylist.Revoke(ctx, rev); err != nil {
		return err
	}
	if err := l.denylist.RevokeFamily(ctx, rev.FamilyID, l.familyExpiry(rev)); err != nil {
		return err
	}

	l.instruments.TokenRevocations.Add(ctx, 1)
	l.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeTokenRevoked,
		ActorID:   rev.UserID,
		SubjectID: rev.UserID,
		Resource:  "refresh_token",
		Metadata:  map[string]any{audit.AttrFamilyID: rev.FamilyID},
	})
	return nil
}

func (l ledger) issued(ctx context.Context, userID, familyID string) {
	l.instruments.TokensIssued.Add(ctx, 1, metrics.Outcome(l.backend))
	slog.DebugContext(ctx, "credential pair issued",
		logger.UserID(userID),
		logger.TokenFamily(familyID),
		logger.TokenBackend(l.backend),
	)
}
