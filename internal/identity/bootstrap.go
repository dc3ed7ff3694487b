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
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
)

// EnvBootstrapSuperuser names an existing user to promote to superuser.
const EnvBootstrapSuperuser = "KKAUTH_BOOTSTRAP_SUPERUSER"

// BootstrapService manages the initial initialization of the system
type BootstrapService struct {
	identityService *Service
	auditLogger     audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(identityService *Service, auditLogger audit.Logger) *BootstrapService {
	return &BootstrapService{
		identityService: identityService,
		auditLogger:     auditLogger,
	}
}

// Bootstrap promotes the user named by EnvBootstrapSuperuser, if set.
func (s *BootstrapService) Bootstrap(ctx context.Context) error {
	username := os.Getenv(EnvBootstrapSuperuser)
	if username == "" {
		return nil
	}
	return s.Promote(ctx, username)
}

// Promote makes username a superuser. Already promoted users are skipped.
// The save hook derives role=admin, staff and rank >= 100.
func (s *BootstrapService) Promote(ctx context.Context, username string) error {
	svc := s.identityService

	var promoted *User
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		u, err := svc.repo.GetByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("bootstrap user %q: %w", username, err)
		}
		if u.IsSuperuser {
			return nil
		}

		u.IsSuperuser = true
		if err := svc.save(ctx, u, false); err != nil {
			return err
		}
		promoted = u
		return nil
	})
	if err != nil {
		return err
	}
	if promoted == nil {
		return nil
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:      audit.TypeSuperuserBootstrap,
		ActorID:   audit.ActorSystem,
		SubjectID: promoted.ID,
		Resource:  "user",
		Metadata: map[string]any{
			audit.AttrUsername: promoted.Username,
			audit.AttrRank:     promoted.AdminRank,
		},
	})
	slog.InfoContext(ctx, "bootstrapped superuser",
		logger.Username(promoted.Username),
		logger.Rank(promoted.AdminRank),
	)
	return nil
}
