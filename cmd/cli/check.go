// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/app"
	"github.com/proposalai/followups/internal/config"
)

type checkStep struct {
	name string
	run  func(ctx context.Context) error
}

// runChecks is a deployment preflight: configuration, any sequence files
// given as arguments, then the store, schema and scheduler lease the
// configured processes would use. It stops at the first failure.
func runChecks(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer, files []string) error {
	offline := []checkStep{{name: "config", run: func(context.Context) error { return cfg.Validate() }}}
	for _, path := range files {
		offline = append(offline, checkStep{
			name: "sequences " + path,
			run: func(context.Context) error {
				_, err := loadFile(path, validationOrg, uuid.Nil)
				return err
			},
		})
	}
	if err := runSteps(ctx, logger, out, offline); err != nil {
		return err
	}

	return withApp(ctx, cfg, logger, func(a *app.App) error {
		return runSteps(ctx, logger, out, []checkStep{
			{name: "store " + cfg.StoreBackend, run: a.Health.Check},
			{name: "scheduler lease", run: func(ctx context.Context) error {
				_, err := a.NewPoller(ctx)
				return err
			}},
		})
	})
}

func runSteps(ctx context.Context, logger *slog.Logger, out io.Writer, steps []checkStep) error {
	for _, step := range steps {
		started := time.Now()
		if err := step.run(ctx); err != nil {
			logger.Error("check failed", "step", step.name, "error", err)
			_, _ = fmt.Fprintf(out, "FAIL %s: %v\n", step.name, err)
			return fmt.Errorf("%s: %w", step.name, err)
		}
		logger.Debug("check passed", "step", step.name, "duration_ms", time.Since(started).Milliseconds())
		_, _ = fmt.Fprintf(out, "ok   %s\n", step.name)
	}
	return nil
}
