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

// Command syncgroups re-mirrors every user's role into group membership.
//
//	syncgroups [--dry-run] [--username NAME]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kitchenkonnect/kkauth/internal/app"
	"github.com/kitchenkonnect/kkauth/internal/audit"
	"github.com/kitchenkonnect/kkauth/internal/config"
	"github.com/kitchenkonnect/kkauth/internal/groups"
	"github.com/kitchenkonnect/kkauth/internal/observability/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report changes without writing them")
	username := flag.String("username", "", "sync only this user")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		Output:      os.Stderr,
	})

	ctx := context.Background()
	a, err := app.New(ctx, cfg, audit.NewSlogLogger(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	report, err := a.Mirror.SyncAll(ctx, groups.SyncOptions{Username: *username, DryRun: *dryRun})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		a.Close()
		os.Exit(1)
	}
	printReport(os.Stdout, report)
	if len(report.Failures) > 0 {
		a.Close()
		os.Exit(1)
	}
}

func printReport(w io.Writer, report *groups.SyncReport) {
	for _, c := range report.Changes {
		mark := " "
		if c.Changed {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-30s %-12s [%s] -> [%s]\n",
			mark, c.Username, c.Role, strings.Join(c.Before, ","), strings.Join(c.After, ","))
	}

	verb := "updated"
	if report.DryRun {
		verb = "would update"
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "! %-30s %v\n", f.Username, f.Err)
	}
	fmt.Fprintf(w, "%d users checked, %s %d, %d failed\n", len(report.Changes)+len(report.Failures), verb, report.Updated, len(report.Failures))
}
