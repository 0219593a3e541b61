// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proposalai/followups/internal/app"
	"github.com/proposalai/followups/internal/config"
	"github.com/proposalai/followups/internal/logging"
)

var Version = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger, Version)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	poller, err := a.NewPoller(ctx)
	if err != nil {
		logger.Error("worker setup failed", "error", err)
		return
	}

	logger.Info("worker configured",
		"poll_interval", cfg.PollInterval,
		"escalation_interval", cfg.EscalationInterval,
		"concurrency", cfg.WorkerConcurrency,
		"redis_lease", cfg.RedisURL != "",
	)

	if err := poller.Run(ctx); err != nil {
		logger.Error("worker stopped", "error", err)
	}
}
