// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	minPoolConns int32 = 5
	// poolHeadroom covers API handlers and the due-set query running next to
	// a full batch of in-flight steps.
	poolHeadroom int32 = 4
)

// NewPool opens a pgx pool sized for the scheduler's step concurrency and
// verifies the database answers before returning it.
func NewPool(ctx context.Context, databaseURL string, concurrency int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = poolSize(concurrency)
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// poolSize gives every in-flight step one connection plus headroom.
func poolSize(concurrency int) int32 {
	return max(int32(concurrency)+poolHeadroom, minPoolConns)
}
