// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proposalai/followups/internal/domain"
)

const sequenceColumns = `
	id, organization_id, owner_user_id, name, description,
	trigger_conditions, steps, escalation,
	is_active, is_default, usage_count, success_rate,
	created_at, updated_at`

type SequenceRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSequenceRepository(pool *pgxpool.Pool, logger *slog.Logger) *SequenceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SequenceRepository{pool: pool, logger: logger}
}

func (r *SequenceRepository) CreateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	trigger, steps, escalation, err := encodeSequence(def)
	if err != nil {
		return domain.SequenceDefinition{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SequenceDefinition{}, storeErr("begin create sequence", err)
	}
	defer tx.Rollback(ctx)

	if def.IsDefault {
		if err := unsetDefaults(ctx, tx, def.OrganizationID, def.ID); err != nil {
			return domain.SequenceDefinition{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO follow_up_sequences (
			id, organization_id, owner_user_id, name, description,
			trigger_conditions, steps, escalation,
			is_active, is_default, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+sequenceColumns,
		def.ID,
		def.OrganizationID,
		nullableUUID(def.OwnerUserID),
		def.Name,
		def.Description,
		trigger,
		steps,
		escalation,
		def.IsActive,
		def.IsDefault,
		def.CreatedAt,
		def.UpdatedAt,
	)
	out, err := scanSequence(row)
	if err != nil {
		r.logger.Error("insert sequence failed", "sequence_id", def.ID, "error", err)
		return domain.SequenceDefinition{}, storeErr("insert sequence", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SequenceDefinition{}, storeErr("commit create sequence", err)
	}
	return out, nil
}

func (r *SequenceRepository) UpdateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	trigger, steps, escalation, err := encodeSequence(def)
	if err != nil {
		return domain.SequenceDefinition{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.SequenceDefinition{}, storeErr("begin update sequence", err)
	}
	defer tx.Rollback(ctx)

	if def.IsDefault {
		if err := unsetDefaults(ctx, tx, def.OrganizationID, def.ID); err != nil {
			return domain.SequenceDefinition{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE follow_up_sequences
		SET name=$3,
		    description=$4,
		    trigger_conditions=$5,
		    steps=$6,
		    escalation=$7,
		    is_active=$8,
		    is_default=$9,
		    updated_at=$10
		WHERE id=$1 AND organization_id=$2
		RETURNING `+sequenceColumns,
		def.ID,
		def.OrganizationID,
		def.Name,
		def.Description,
		trigger,
		steps,
		escalation,
		def.IsActive,
		def.IsDefault,
		def.UpdatedAt,
	)
	out, err := scanSequence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SequenceDefinition{}, domain.ErrNotFound
	}
	if err != nil {
		r.logger.Error("update sequence failed", "sequence_id", def.ID, "error", err)
		return domain.SequenceDefinition{}, storeErr("update sequence", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SequenceDefinition{}, storeErr("commit update sequence", err)
	}
	return out, nil
}

func (r *SequenceRepository) GetSequence(ctx context.Context, id uuid.UUID) (domain.SequenceDefinition, error) {
	out, err := scanSequence(r.pool.QueryRow(ctx,
		`SELECT `+sequenceColumns+` FROM follow_up_sequences WHERE id=$1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SequenceDefinition{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SequenceDefinition{}, storeErr("get sequence", err)
	}
	return out, nil
}

func (r *SequenceRepository) ListSequences(ctx context.Context, orgID uuid.UUID) ([]domain.SequenceDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sequenceColumns+`
		FROM follow_up_sequences
		WHERE organization_id=$1
		ORDER BY created_at DESC, id
	`, orgID)
	if err != nil {
		r.logger.Error("list sequences query failed", "organization_id", orgID, "error", err)
		return nil, storeErr("list sequences", err)
	}
	defer rows.Close()

	out := make([]domain.SequenceDefinition, 0, 16)
	for rows.Next() {
		seq, err := scanSequence(rows)
		if err != nil {
			return nil, storeErr("scan sequence", err)
		}
		out = append(out, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list sequences", err)
	}
	return out, nil
}

func (r *SequenceRepository) DefaultSequence(ctx context.Context, orgID uuid.UUID) (domain.SequenceDefinition, error) {
	out, err := scanSequence(r.pool.QueryRow(ctx, `
		SELECT `+sequenceColumns+`
		FROM follow_up_sequences
		WHERE organization_id=$1 AND is_default AND is_active
	`, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SequenceDefinition{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SequenceDefinition{}, storeErr("default sequence", err)
	}
	return out, nil
}

// SetDefaultSequence unsets every other default of the organization and sets
// id in one transaction.
func (r *SequenceRepository) SetDefaultSequence(ctx context.Context, orgID, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storeErr("begin set default", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM follow_up_sequences
			WHERE id=$1 AND organization_id=$2
			FOR UPDATE
		)
	`, id, orgID).Scan(&exists); err != nil {
		return storeErr("lock sequence", err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if err := unsetDefaults(ctx, tx, orgID, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE follow_up_sequences
		SET is_default=TRUE, updated_at=NOW()
		WHERE id=$1
	`, id); err != nil {
		return storeErr("set default", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit set default", err)
	}
	return nil
}

func (r *SequenceRepository) SetSequenceActive(ctx context.Context, orgID, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE follow_up_sequences
		SET is_active=$3, updated_at=NOW()
		WHERE id=$1 AND organization_id=$2
	`, id, orgID, active)
	if err != nil {
		return storeErr("set sequence active", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordOutcome counts one finished run. success_rate is successful_runs
// divided by finished_runs.
func (r *SequenceRepository) RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE follow_up_sequences
		SET finished_runs = finished_runs + 1,
		    successful_runs = successful_runs + CASE WHEN $2 THEN 1 ELSE 0 END,
		    success_rate = (successful_runs + CASE WHEN $2 THEN 1 ELSE 0 END)::float8 / (finished_runs + 1),
		    updated_at = NOW()
		WHERE id=$1
	`, id, success)
	if err != nil {
		return storeErr("record outcome", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func unsetDefaults(ctx context.Context, tx pgx.Tx, orgID, keep uuid.UUID) error {
	if _, err := tx.Exec(ctx, `
		UPDATE follow_up_sequences
		SET is_default=FALSE, updated_at=NOW()
		WHERE organization_id=$1 AND is_default AND id <> $2
	`, orgID, keep); err != nil {
		return storeErr("unset defaults", err)
	}
	return nil
}

func encodeSequence(def domain.SequenceDefinition) (trigger, steps, escalation []byte, err error) {
	if trigger, err = json.Marshal(def.Trigger); err != nil {
		return nil, nil, nil, err
	}
	if steps, err = json.Marshal(def.Steps); err != nil {
		return nil, nil, nil, err
	}
	if escalation, err = json.Marshal(def.Escalation); err != nil {
		return nil, nil, nil, err
	}
	return trigger, steps, escalation, nil
}

func scanSequence(row pgx.Row) (domain.SequenceDefinition, error) {
	var (
		def                        domain.SequenceDefinition
		owner                      *uuid.UUID
		trigger, steps, escalation []byte
	)
	if err := row.Scan(
		&def.ID,
		&def.OrganizationID,
		&owner,
		&def.Name,
		&def.Description,
		&trigger,
		&steps,
		&escalation,
		&def.IsActive,
		&def.IsDefault,
		&def.UsageCount,
		&def.SuccessRate,
		&def.CreatedAt,
		&def.UpdatedAt,
	); err != nil {
		return domain.SequenceDefinition{}, err
	}
	if owner != nil {
		def.OwnerUserID = *owner
	}
	if err := json.Unmarshal(trigger, &def.Trigger); err != nil {
		return domain.SequenceDefinition{}, err
	}
	if err := json.Unmarshal(steps, &def.Steps); err != nil {
		return domain.SequenceDefinition{}, err
	}
	if err := json.Unmarshal(escalation, &def.Escalation); err != nil {
		return domain.SequenceDefinition{}, err
	}
	return def, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
