// SPDX-License-Identifier: Apache-2.0

package followup

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/metrics"
)

// GetExecution returns an execution owned by orgID.
func (e *Engine) GetExecution(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error) {
	rec, err := e.store.GetExecution(ctx, id)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	if rec.OrganizationID != orgID {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// ListActiveExecutions lists executions an operator can still act on: ACTIVE
// and PAUSED, newest first.
func (e *Engine) ListActiveExecutions(ctx context.Context, orgID uuid.UUID) ([]domain.ExecutionRecord, error) {
	return e.store.ListActiveExecutions(ctx, orgID)
}

// Pause moves an ACTIVE execution to PAUSED. The scheduler skips paused
// executions until they are resumed.
func (e *Engine) Pause(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error) {
	return e.transition(ctx, orgID, id, func(rec domain.ExecutionRecord) (domain.StepResult, error) {
		if rec.Status != domain.ExecutionActive {
			return domain.StepResult{}, domain.ErrInvalidTransition
		}
		return domain.StepResult{
			Status:          domain.ExecutionPaused,
			CurrentStep:     rec.CurrentStep,
			NextExecutionAt: rec.NextExecutionAt,
		}, nil
	})
}

// Resume moves a PAUSED execution back to ACTIVE. A step whose time passed
// while paused becomes due on the next pass.
func (e *Engine) Resume(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error) {
	return e.transition(ctx, orgID, id, func(rec domain.ExecutionRecord) (domain.StepResult, error) {
		if rec.Status != domain.ExecutionPaused {
			return domain.StepResult{}, domain.ErrInvalidTransition
		}
		if other, err := e.store.FindActiveExecution(ctx, rec.ProposalID); err == nil && other.ID != rec.ID {
			return domain.StepResult{}, domain.ErrAlreadyActive
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.StepResult{}, err
		}

		next := rec.NextExecutionAt
		if next == nil {
			now := e.Now()
			next = &now
		}
		return domain.StepResult{
			Status:          domain.ExecutionActive,
			CurrentStep:     rec.CurrentStep,
			NextExecutionAt: next,
		}, nil
	})
}

// Stop ends an ACTIVE or PAUSED execution with MANUAL_STOP.
func (e *Engine) Stop(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error) {
	rec, err := e.transition(ctx, orgID, id, func(rec domain.ExecutionRecord) (domain.StepResult, error) {
		if rec.Status.Terminal() {
			return domain.StepResult{}, domain.ErrInvalidTransition
		}
		now := e.Now()
		return domain.StepResult{
			Status:        domain.ExecutionStopped,
			CurrentStep:   rec.CurrentStep,
			StoppedReason: domain.ReasonManualStop,
			FinishedAt:    &now,
		}, nil
	})
	if err != nil {
		return rec, err
	}

	if err := e.store.RecordOutcome(ctx, rec.SequenceID, false); err != nil && !errors.Is(err, domain.ErrNotFound) {
		e.logger.Error("record outcome failed", "sequence_id", rec.SequenceID, "error", err)
	}
	return rec, nil
}

// transition applies an operator change as a version-checked update. Records
// held by a scheduler pass report domain.ErrExecutionBusy.
func (e *Engine) transition(ctx context.Context, orgID, id uuid.UUID, next func(domain.ExecutionRecord) (domain.StepResult, error)) (domain.ExecutionRecord, error) {
	rec, err := e.GetExecution(ctx, orgID, id)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	if rec.Claimed(e.Now()) {
		return domain.ExecutionRecord{}, domain.ErrExecutionBusy
	}

	res, err := next(rec)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	updated, err := e.store.ApplyResult(ctx, rec.ID, rec.Version, res)
	if errors.Is(err, domain.ErrClaimLost) {
		return domain.ExecutionRecord{}, domain.ErrExecutionBusy
	}
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	metrics.IncTransition(res.Status)
	e.logger.Info("execution status changed",
		"execution_id", rec.ID,
		"from", rec.Status,
		"to", res.Status,
	)
	return updated, nil
}
