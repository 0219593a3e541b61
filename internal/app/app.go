// SPDX-License-Identifier: Apache-2.0

// Package app wires configuration into a running engine: store backend,
// dispatcher, tracing, error reporting and the scheduler lease.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/auth"
	"github.com/proposalai/followups/internal/config"
	"github.com/proposalai/followups/internal/dispatch"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/followup"
	"github.com/proposalai/followups/internal/lease"
	"github.com/proposalai/followups/internal/memstore"
	"github.com/proposalai/followups/internal/persistence/postgres"
	"github.com/proposalai/followups/internal/reporting"
	"github.com/proposalai/followups/internal/repository"
	"github.com/proposalai/followups/internal/tracing"
	"github.com/proposalai/followups/internal/worker"
)

// Store is everything the process needs from a durable backend.
type Store interface {
	followup.Store
	followup.ProposalReader

	ResolveAPIKey(ctx context.Context, bearerToken string) (auth.APIKey, bool, error)
	CreateAPIKey(ctx context.Context, params domain.CreateAPIKeyParams) (domain.CreatedAPIKey, error)
	ListAPIKeys(ctx context.Context) ([]domain.APIKeyRecord, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// HealthChecker answers readiness probes for the selected backend.
type HealthChecker interface {
	Check(ctx context.Context) error
}

var (
	_ Store = (*repository.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Store    Store
	Health   HealthChecker
	Engine   *followup.Engine
	Reporter *reporting.Reporter

	closers []func(context.Context) error
}

// New builds the engine and its collaborators. Callers must Close the App.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Exporter:    cfg.TracingExporter,
		ServiceName: "followups",
		Environment: cfg.Env,
		Version:     version,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, shutdownTracing)

	reporter, err := reporting.New(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("sentry: %w", err)
	}
	a.Reporter = reporter
	a.closers = append(a.closers, func(context.Context) error {
		reporter.Flush(2 * time.Second)
		return nil
	})

	store, err := a.openStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Store = store

	sender, err := dispatch.New(dispatch.Config{
		Driver:       cfg.DispatchDriver,
		Timeout:      cfg.DispatchTimeout,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
		SMTPFrom:     cfg.SMTPFrom,
		SMTPFromName: cfg.SMTPFromName,
		RelayURL:     cfg.RelayURL,
		RelaySecret:  cfg.RelaySecret,
	}, &http.Client{}, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	a.Engine = followup.New(followup.Deps{
		Store:       store,
		Proposals:   store,
		Dispatcher:  sender,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		BatchSize:   cfg.BatchSize,
		ClaimTTL:    cfg.ClaimTTL,
	})

	return a, nil
}

func (a *App) openStore(ctx context.Context) (Store, error) {
	if a.Config.StoreBackend == config.StoreBackendMemory {
		a.Logger.Warn("using in-memory store; data is lost on restart")
		mem := memstore.New()
		a.Health = mem
		return mem, nil
	}

	pool, err := postgres.NewPool(ctx, a.Config.DatabaseURL, a.Config.WorkerConcurrency)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	if a.Config.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, a.Logger); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	} else if err := postgres.SchemaReady(ctx, pool); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	a.Health = postgres.NewReadiness(pool)
	return repository.NewStore(pool, a.Logger), nil
}

// NewPoller returns the scheduler loop. Passes are guarded by a Redis lease
// when REDIS_URL is set so several workers can run side by side.
func (a *App) NewPoller(ctx context.Context) (*worker.Poller, error) {
	var locker lease.Locker = lease.Noop{}
	if a.Config.RedisURL != "" {
		rl, err := lease.NewRedisLocker(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis lease: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return rl.Close() })
		locker = rl
	}

	return worker.New(worker.Deps{
		Engine:             a.Engine,
		Locker:             locker,
		Reporter:           a.Reporter,
		Logger:             a.Logger,
		PollInterval:       a.Config.PollInterval,
		EscalationInterval: a.Config.EscalationInterval,
		LeaseTTL:           a.Config.LeaseTTL,
	}), nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
