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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kitchenkonnect/kkauth/internal/app"
	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/config"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
	"github.com/kitchenkonnect/kkauth/internal/observability/metrics"
	"github.com/kitchenkonnect/kkauth/internal/observability/tracing"
	transportHTTP "github.com/kitchenkonnect/kkauth/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTelEnabled: cfg.Observability.OTELEnabled,
	})

	// CLI commands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			if err := runMigrate(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
				os.Exit(1)
			}
			return
		case "bootstrap":
			if err := runBootstrap(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Bootstrap failed: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q (want migrate or bootstrap)\n", os.Args[1])
			os.Exit(2)
		}
	}

	if err := serve(cfg); err != nil {
		slog.Error("server failed", logger.Error(err))
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "starting kkauth", slog.String("version", cfg.Observability.ServiceVersion))

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(context.Background())
	}

	meter, err := metrics.New(ctx, metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		return err
	}
	instruments, err := metrics.NewInstruments(meter)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, audit.NewSlogLogger(), instruments)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.DB == nil {
		slog.WarnContext(ctx, "using the in-memory store; all state is lost on exit")
	}

	// Bootstrap is env driven and a missing user is not fatal.
	if err := a.Bootstrap.Bootstrap(ctx); err != nil {
		slog.ErrorContext(ctx, "bootstrap failed", logger.Error(err))
	}

	var rateLimiter *transportHTTP.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		defer rateLimiter.Stop()
	}

	handler := transportHTTP.NewHandler(
		a.Identity,
		a.Verification,
		a.Mirror,
		a.Issuer,
		a.Sessions,
		a.Tx,
		a.Audit,
		cfg.Server.RequestTimeout,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      transportHTTP.NewRouter(handler, rateLimiter, cfg.Server.TrustProxyHeaders),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server",
			logger.Component("server"),
			logger.Operation("listen"),
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func runBootstrap(cfg *config.Config) error {
	ctx := context.Background()
	a, err := app.New(ctx, cfg, audit.NewSlogLogger(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(os.Args) > 2 {
		return a.Bootstrap.Promote(ctx, os.Args[2])
	}
	return a.Bootstrap.Bootstrap(ctx)
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying migrations...")
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
