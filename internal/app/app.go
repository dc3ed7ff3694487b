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

// Package app assembles repositories and services from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/config"
	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
	"github.com/kitchenkonnect/kkauth/internal/session"
	"github.com/kitchenkonnect/kkauth/internal/store"
	"github.com/kitchenkonnect/kkauth/internal/store/memory"
	"github.com/kitchenkonnect/kkauth/internal/store/postgres"
	"github.com/kitchenkonnect/kkauth/internal/token"
	"github.com/kitchenkonnect/kkauth/internal/verification"
)

// App holds the wired services.
type App struct {
	Config *config.Config
	DB     *postgres.DB // nil for the memory driver

	Tx            store.Transactor
	Users         identity.UserRepository
	Groups        groups.Repository
	Verifications verification.Repository
	Denylist      token.Denylist
	Tokens        token.Store

	Audit        audit.Logger
	Identity     *identity.Service
	Bootstrap    *identity.BootstrapService
	Mirror       *groups.Mirror
	Verification *verification.Service
	Issuer       token.Issuer
	Sessions     *session.Manager
}

// New connects the configured store and builds every service on top of it.
// A nil instruments records nothing.
func New(ctx context.Context, cfg *config.Config, auditLogger audit.Logger, instruments *metrics.Instruments) (*App, error) {
	a := &App{Config: cfg, Audit: auditLogger}

	switch cfg.Store.Driver {
	case "memory":
		s := memory.New()
		a.Tx = s
		a.Users = memory.NewUserRepository(s)
		a.Groups = memory.NewGroupRepository(s)
		a.Verifications = memory.NewVerificationRepository(s)
		a.Denylist = memory.NewDenylist(s)
		a.Tokens = memory.NewTokenStore(s)
	case "postgres":
		db, err := OpenDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Tx = db
		a.Users = postgres.NewUserRepository(db)
		a.Groups = postgres.NewGroupRepository(db)
		a.Verifications = postgres.NewVerificationRepository(db)
		a.Denylist = postgres.NewDenylist(db)
		a.Tokens = postgres.NewTokenStore(db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	a.Mirror = groups.NewMirror(a.Groups, a.Users, auditLogger)
	a.Identity = identity.NewService(
		a.Users,
		hasher,
		a.Mirror,
		a.Tx,
		auditLogger,
		instruments,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	)
	a.Bootstrap = identity.NewBootstrapService(a.Identity, auditLogger)
	a.Verification = verification.NewService(a.Verifications, a.Identity, a.Tx, auditLogger, instruments)

	issuer, err := token.NewIssuer(
		cfg.Token.Backend,
		[]byte(cfg.Token.Secret),
		a.Denylist,
		a.Tokens,
		token.Options{
			AccessTTL:  cfg.Token.AccessTTL,
			RefreshTTL: cfg.Token.RefreshTTL,
			Issuer:     cfg.Token.Issuer,
		},
		auditLogger,
		instruments,
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	a.Issuer = issuer

	a.Sessions = session.NewManager(session.Config{
		CookieName:     cfg.Cookie.Name,
		Path:           cfg.Cookie.Path,
		Domain:         cfg.Cookie.Domain,
		LocalDev:       cfg.Cookie.LocalDev,
		CSRFCookieName: cfg.Cookie.CSRFCookieName,
		CSRFHeaderName: cfg.Cookie.CSRFHeaderName,
	}, issuer)

	slog.InfoContext(ctx, "services initialized",
		logger.Component("app"),
		slog.String("store", cfg.Store.Driver),
		logger.TokenBackend(issuer.Backend()),
	)
	return a, nil
}

// OpenDB connects to the configured Postgres database.
func OpenDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		URL:          cfg.Database.URL,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// CleanupResult counts purged rows.
type CleanupResult struct {
	Revocations int64
	Tokens      int64
}

// Cleanup purges denylist entries and opaque credentials that expired
// before now. Family entries carry the latest expiry any member can have.
func (a *App) Cleanup(ctx context.Context, now time.Time) (CleanupResult, error) {
	var res CleanupResult
	var err error
	if res.Revocations, err = a.Denylist.DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("failed to purge denylist: %w", err)
	}
	if res.Tokens, err = a.Tokens.DeleteExpired(ctx, now); err != nil {
		return res, fmt.Errorf("failed to purge tokens: %w", err)
	}
	return res, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
