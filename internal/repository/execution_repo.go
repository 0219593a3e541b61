// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proposalai/followups/internal/domain"
)

const executionColumns = `
	id, proposal_id, sequence_id, organization_id, status, current_step,
	execution_log, stopped_reason, next_execution_at, claimed_until,
	version, created_at, updated_at, finished_at`

type ExecutionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewExecutionRepository(pool *pgxpool.Pool, logger *slog.Logger) *ExecutionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionRepository{pool: pool, logger: logger}
}

// CreateExecution inserts rec and bumps the sequence usage count in one
// transaction. The partial unique index on ACTIVE executions turns a second
// concurrent trigger into domain.ErrAlreadyActive.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, rec domain.ExecutionRecord) (domain.ExecutionRecord, error) {
	entries, err := encodeLog(rec.Log)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ExecutionRecord{}, storeErr("begin create execution", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO follow_up_executions (
			id, proposal_id, sequence_id, organization_id, status, current_step,
			execution_log, next_execution_at, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
		RETURNING `+executionColumns,
		rec.ID,
		rec.ProposalID,
		rec.SequenceID,
		rec.OrganizationID,
		rec.Status,
		rec.CurrentStep,
		entries,
		rec.NextExecutionAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	out, err := scanExecution(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ExecutionRecord{}, domain.ErrAlreadyActive
		}
		r.logger.Error("insert execution failed", "proposal_id", rec.ProposalID, "error", err)
		return domain.ExecutionRecord{}, storeErr("insert execution", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE follow_up_sequences
		SET usage_count = usage_count + 1
		WHERE id=$1
	`, rec.SequenceID)
	if err != nil {
		return domain.ExecutionRecord{}, storeErr("increment usage", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ExecutionRecord{}, domain.ErrAlreadyActive
		}
		return domain.ExecutionRecord{}, storeErr("commit create execution", err)
	}
	return out, nil
}

func (r *ExecutionRepository) GetExecution(ctx context.Context, id uuid.UUID) (domain.ExecutionRecord, error) {
	out, err := scanExecution(r.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM follow_up_executions WHERE id=$1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExecutionRecord{}, storeErr("get execution", err)
	}
	return out, nil
}

func (r *ExecutionRepository) FindActiveExecution(ctx context.Context, proposalID uuid.UUID) (domain.ExecutionRecord, error) {
	out, err := scanExecution(r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+`
		FROM follow_up_executions
		WHERE proposal_id=$1 AND status='ACTIVE'
	`, proposalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExecutionRecord{}, storeErr("find active execution", err)
	}
	return out, nil
}

// ListActiveExecutions returns the organization's ACTIVE and PAUSED records.
func (r *ExecutionRepository) ListActiveExecutions(ctx context.Context, orgID uuid.UUID) ([]domain.ExecutionRecord, error) {
	return r.list(ctx, "list active executions", `
		SELECT `+executionColumns+`
		FROM follow_up_executions
		WHERE organization_id=$1 AND status IN ('ACTIVE', 'PAUSED')
		ORDER BY created_at DESC, id
	`, orgID)
}

func (r *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ExecutionRecord, error) {
	return r.list(ctx, "list due executions", `
		SELECT `+executionColumns+`
		FROM follow_up_executions
		WHERE status='ACTIVE'
		  AND next_execution_at <= $1
		  AND (claimed_until IS NULL OR claimed_until <= $1)
		ORDER BY next_execution_at ASC, id ASC
		LIMIT $2
	`, now, limit)
}

func (r *ExecutionRepository) Claim(ctx context.Context, id uuid.UUID, version int64, now time.Time, ttl time.Duration) (domain.ExecutionRecord, error) {
	out, err := scanExecution(r.pool.QueryRow(ctx, `
		UPDATE follow_up_executions
		SET claimed_until=$4,
		    version=version + 1,
		    updated_at=$3
		WHERE id=$1
		  AND version=$2
		  AND status='ACTIVE'
		  AND next_execution_at <= $3
		  AND (claimed_until IS NULL OR claimed_until <= $3)
		RETURNING `+executionColumns,
		id,
		version,
		now,
		now.Add(ttl),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionRecord{}, domain.ErrClaimLost
	}
	if err != nil {
		r.logger.Error("claim execution failed", "execution_id", id, "error", err)
		return domain.ExecutionRecord{}, storeErr("claim execution", err)
	}
	return out, nil
}

// ApplyResult is the only write path for step and operator transitions. The
// version predicate makes it a compare-and-swap.
func (r *ExecutionRepository) ApplyResult(ctx context.Context, id uuid.UUID, version int64, res domain.StepResult) (domain.ExecutionRecord, error) {
	entries, err := encodeLog(res.Append)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	out, err := scanExecution(r.pool.QueryRow(ctx, `
		UPDATE follow_up_executions
		SET status=$3,
		    current_step=$4,
		    stopped_reason=NULLIF($5, ''),
		    next_execution_at=$6,
		    finished_at=$7,
		    execution_log=execution_log || $8::jsonb,
		    claimed_until=NULL,
		    version=version + 1,
		    updated_at=NOW()
		WHERE id=$1 AND version=$2
		RETURNING `+executionColumns,
		id,
		version,
		res.Status,
		res.CurrentStep,
		string(res.StoppedReason),
		res.NextExecutionAt,
		res.FinishedAt,
		entries,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ExecutionRecord{}, domain.ErrClaimLost
	case isUniqueViolation(err):
		return domain.ExecutionRecord{}, domain.ErrAlreadyActive
	case err != nil:
		r.logger.Error("apply step result failed", "execution_id", id, "error", err)
		return domain.ExecutionRecord{}, storeErr("apply result", err)
	}
	return out, nil
}

func (r *ExecutionRepository) ListEscalationCandidates(ctx context.Context) ([]domain.ExecutionRecord, error) {
	return r.list(ctx, "list escalation candidates", `
		SELECT `+executionColumns+`
		FROM follow_up_executions
		WHERE status='ACTIVE' AND escalated_at IS NULL
		ORDER BY created_at ASC, id
	`)
}

func (r *ExecutionRepository) ClaimEscalation(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE follow_up_executions
		SET escalated_at=$2
		WHERE id=$1 AND status='ACTIVE' AND escalated_at IS NULL
	`, id, now)
	if err != nil {
		return storeErr("claim escalation", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

// AppendLog adds entries without touching the version, so an escalation
// never invalidates a step claim.
func (r *ExecutionRepository) AppendLog(ctx context.Context, id uuid.UUID, entries []domain.LogEntry) error {
	raw, err := encodeLog(entries)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE follow_up_executions
		SET execution_log = execution_log || $2::jsonb,
		    updated_at = NOW()
		WHERE id=$1
	`, id, raw)
	if err != nil {
		return storeErr("append log", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ExecutionRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.ExecutionRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error(op+" query failed", "error", err)
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	out := make([]domain.ExecutionRecord, 0, 32)
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

func encodeLog(entries []domain.LogEntry) ([]byte, error) {
	if len(entries) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(entries)
}

func scanExecution(row pgx.Row) (domain.ExecutionRecord, error) {
	var (
		rec    domain.ExecutionRecord
		raw    []byte
		reason *string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.ProposalID,
		&rec.SequenceID,
		&rec.OrganizationID,
		&rec.Status,
		&rec.CurrentStep,
		&raw,
		&reason,
		&rec.NextExecutionAt,
		&rec.ClaimedUntil,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.FinishedAt,
	); err != nil {
		return domain.ExecutionRecord{}, err
	}
	if reason != nil {
		rec.StoppedReason = domain.StoppedReason(*reason)
	}
	if err := json.Unmarshal(raw, &rec.Log); err != nil {
		return domain.ExecutionRecord{}, err
	}
	return rec, nil
}
