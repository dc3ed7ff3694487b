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

// Command cleanup purges expired denylist entries and opaque credentials.
// Run it periodically from cron or a scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kitchenkonnect/kkauth/internal/app"
	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/config"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, audit.NewSlogLogger(), nil)
	if err != nil {
		slog.Error("failed to initialize", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	res, err := a.Cleanup(ctx, time.Now())
	if err != nil {
		slog.Error("cleanup failed", logger.Error(err))
		a.Close()
		os.Exit(1)
	}

	slog.Info("cleanup complete",
		logger.Component("cleanup"),
		slog.Int64("revocations", res.Revocations),
		slog.Int64("tokens", res.Tokens),
	)
}
