// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/app"
	"github.com/proposalai/followups/internal/config"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/sequence"
)

// validationOrg stands in for the owning organization when a file is only
// checked, never stored.
var validationOrg = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func loadFile(path string, orgID, ownerID uuid.UUID) ([]domain.SequenceDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	defs, err := sequence.LoadDefinitions(f, orgID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

func runValidate(out io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("validate needs at least one file")
	}

	var errs []error
	for _, path := range args {
		defs, err := loadFile(path, validationOrg, uuid.Nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s: %d sequence(s) ok\n", path, len(defs))
	}
	return errors.Join(errs...)
}

func runSeed(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	orgFlag := fs.String("org", "", "organization id that owns the sequences")
	ownerFlag := fs.String("owner", "", "optional owner user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	orgID, err := uuid.Parse(*orgFlag)
	if err != nil {
		return fmt.Errorf("invalid -org: %w", err)
	}
	ownerID := uuid.Nil
	if *ownerFlag != "" {
		if ownerID, err = uuid.Parse(*ownerFlag); err != nil {
			return fmt.Errorf("invalid -owner: %w", err)
		}
	}
	if fs.NArg() == 0 {
		return errors.New("seed needs at least one file")
	}

	var defs []domain.SequenceDefinition
	for _, path := range fs.Args() {
		loaded, err := loadFile(path, orgID, ownerID)
		if err != nil {
			return err
		}
		defs = append(defs, loaded...)
	}

	return withApp(ctx, cfg, logger, func(a *app.App) error {
		for _, def := range defs {
			created, err := a.Engine.CreateSequence(ctx, def)
			if err != nil {
				return fmt.Errorf("create %q: %w", def.Name, err)
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", created.ID, created.Name)
		}
		return nil
	})
}

func runProcessDue(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	return withApp(ctx, cfg, logger, func(a *app.App) error {
		poller, err := a.NewPoller(ctx)
		if err != nil {
			return err
		}
		res, ran, err := poller.ProcessDueOnce(ctx)
		if err != nil {
			return err
		}
		if !ran {
			logger.Info("process-due skipped, another worker holds the lease")
		}
		return printJSON(out, res)
	})
}

func runEscalate(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	return withApp(ctx, cfg, logger, func(a *app.App) error {
		poller, err := a.NewPoller(ctx)
		if err != nil {
			return err
		}
		res, ran, err := poller.EscalateOnce(ctx)
		if err != nil {
			return err
		}
		if !ran {
			logger.Info("escalation skipped, another worker holds the lease")
		}
		return printJSON(out, res)
	})
}

func withApp(ctx context.Context, cfg config.Config, logger *slog.Logger, fn func(*app.App) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger, Version)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	return fn(a)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
