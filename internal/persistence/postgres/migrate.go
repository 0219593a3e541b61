// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proposalai/followups/migrations"
)

const migrationLockKey int64 = 0x4655505f4d494752 // "FUP_MIGR"

// ErrMigrationChanged means an embedded migration no longer matches the
// checksum recorded when it was applied.
var ErrMigrationChanged = errors.New("applied migration was modified")

// schemaRequirements lists, per table, the columns the code depends on. A
// table with no columns only has to exist.
var schemaRequirements = map[string][]string{
	"organizations":        nil,
	"clients":              nil,
	"proposals":            {"organization_id", "status", "value", "client_replied"},
	"follow_up_sequences":  {"is_default", "is_active", "finished_runs"},
	"follow_up_executions": {"version", "claimed_until", "escalated_at"},
	"api_keys":             {"organization_id", "token_hash", "token_prefix", "last_used_at"},
}

// Readiness backs the health endpoint: the database must answer and carry
// the schema this build expects.
type Readiness struct {
	pool *pgxpool.Pool
}

func NewReadiness(pool *pgxpool.Pool) *Readiness {
	return &Readiness{pool: pool}
}

func (r *Readiness) Check(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return SchemaReady(ctx, r.pool)
}

// EnsureSchema applies pending embedded migrations. Concurrent callers
// serialize on a session advisory lock, and previously applied files must
// still match their recorded checksum.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if pool == nil {
		return errors.New("nil database pool")
	}
	if logger == nil {
		logger = slog.Default()
	}

	files, err := migrations.Ordered()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no embedded migrations found")
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for migrations: %w", err)
	}
	defer conn.Release()

	started := time.Now()
	err = withMigrationLock(ctx, conn, logger, func() error {
		applied, err := appliedChecksums(ctx, conn)
		if err != nil {
			return err
		}

		pending := 0
		for _, f := range files {
			if sum, ok := applied[f.Version]; ok {
				if sum != f.Checksum {
					return fmt.Errorf("%w: %s", ErrMigrationChanged, f.Name)
				}
				continue
			}
			if err := apply(ctx, conn, f); err != nil {
				return fmt.Errorf("apply migration %s: %w", f.Name, err)
			}
			logger.Info("migration applied", "version", f.Version, "file", f.Name)
			pending++
		}

		logger.Info("schema up to date",
			"applied", pending,
			"total", len(files),
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return nil
	})
	if err != nil {
		return err
	}

	return SchemaReady(ctx, pool)
}

func withMigrationLock(ctx context.Context, conn *pgxpool.Conn, logger *slog.Logger, fn func() error) error {
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// The caller's ctx may already be cancelled; the lock must still go.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			logger.Error("release migration lock failed", "error", err)
		}
	}()
	return fn()
}

func appliedChecksums(ctx context.Context, conn *pgxpool.Conn) (map[int]string, error) {
	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version int
			sum     string
		)
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = sum
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, conn *pgxpool.Conn, f migrations.File) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, f.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
			f.Version, f.Name, f.Checksum)
		return err
	})
}

// SchemaReady reports every missing table or column in one error.
func SchemaReady(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("nil database pool")
	}

	tables, columns := requirementArrays()
	rows, err := pool.Query(ctx, `
		SELECT r.tbl || CASE WHEN r.col = '' THEN '' ELSE '.' || r.col END
		FROM unnest($1::text[], $2::text[]) AS r(tbl, col)
		WHERE (r.col = '' AND to_regclass('public.' || r.tbl) IS NULL)
		   OR (r.col <> '' AND NOT EXISTS (
				SELECT 1
				FROM information_schema.columns c
				WHERE c.table_schema = 'public'
				  AND c.table_name = r.tbl
				  AND c.column_name = r.col
		   ))
		ORDER BY 1
	`, tables, columns)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}

	missing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema incomplete, missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// requirementArrays flattens schemaRequirements into parallel arrays. Each
// table contributes one row with an empty column for its existence check.
func requirementArrays() (tables, columns []string) {
	for table, cols := range schemaRequirements {
		tables = append(tables, table)
		columns = append(columns, "")
		for _, col := range cols {
			tables = append(tables, table)
			columns = append(columns, col)
		}
	}
	return tables, columns
}
