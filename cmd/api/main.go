// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proposalai/followups/internal/app"
	"github.com/proposalai/followups/internal/config"
	"github.com/proposalai/followups/internal/logging"
	httptransport "github.com/proposalai/followups/internal/transport/http"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)

	a, err := app.New(ctx, cfg, logger, Version)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	handler := httptransport.NewRouter(httptransport.Deps{
		Sequences:      a.Engine,
		Executions:     a.Engine,
		Passes:         a.Engine,
		APIKeyAdmin:    a.Store,
		APIKeyResolver: a.Store,
		Health:         a.Health,
		Logger:         logger,
		AdminToken:     cfg.AdminToken,
		Version:        Version,
		Commit:         Commit,
		BuildDate:      BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
			"store", cfg.StoreBackend,
			"embedded_worker", cfg.EmbedWorker,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.EmbedWorker {
		poller, err := a.NewPoller(ctx)
		if err != nil {
			logger.Error("embedded worker setup failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			return poller.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
