// SPDX-License-Identifier: Apache-2.0

package followup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/metrics"
)

// TriggerEvent is a proposal state change that may start a follow-up run.
type TriggerEvent struct {
	ProposalID     uuid.UUID
	OrganizationID uuid.UUID
	NewStatus      domain.ProposalStatus
	Timestamp      time.Time
	// SequenceID optionally selects a sequence instead of the organization default.
	SequenceID *uuid.UUID
}

// Trigger starts a new execution for the event's proposal.
//
// It fails with domain.ErrNoSequenceFound when neither the requested sequence
// nor an active default applies, domain.ErrTriggerConditionsNotMet when the
// sequence's trigger conditions reject the proposal, and
// domain.ErrAlreadyActive when the proposal already has an ACTIVE execution.
func (e *Engine) Trigger(ctx context.Context, ev TriggerEvent) (domain.ExecutionRecord, error) {
	rec, err := e.trigger(ctx, ev)

	switch {
	case err == nil:
		metrics.IncTrigger(metrics.TriggerCreated)
		metrics.IncTransition(domain.ExecutionActive)
	case errors.Is(err, domain.ErrAlreadyActive):
		metrics.IncTrigger(metrics.TriggerAlreadyActive)
	case errors.Is(err, domain.ErrNoSequenceFound):
		metrics.IncTrigger(metrics.TriggerNoSequence)
	case errors.Is(err, domain.ErrTriggerConditionsNotMet):
		metrics.IncTrigger(metrics.TriggerNotMet)
	default:
		metrics.IncTrigger(metrics.TriggerError)
	}

	return rec, err
}

func (e *Engine) trigger(ctx context.Context, ev TriggerEvent) (domain.ExecutionRecord, error) {
	proposal, err := e.proposals.GetProposal(ctx, ev.ProposalID)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	if proposal.OrganizationID != ev.OrganizationID {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}

	seq, err := e.resolveSequence(ctx, ev.OrganizationID, ev.SequenceID)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	status := ev.NewStatus
	if status == "" {
		status = proposal.Status
	}
	if err := conditionsMet(seq.Trigger, status, proposal); err != nil {
		return domain.ExecutionRecord{}, err
	}

	if _, err := e.store.FindActiveExecution(ctx, ev.ProposalID); err == nil {
		return domain.ExecutionRecord{}, domain.ErrAlreadyActive
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.ExecutionRecord{}, err
	}

	first, ok := seq.Step(1)
	if !ok {
		return domain.ExecutionRecord{}, fmt.Errorf("%w: sequence %s has no steps", domain.ErrNoSequenceFound, seq.ID)
	}

	now := ev.Timestamp
	if now.IsZero() {
		now = e.Now()
	}
	now = now.UTC()
	next := now.AddDate(0, 0, first.DelayDays)

	rec, err := e.store.CreateExecution(ctx, domain.ExecutionRecord{
		ID:              uuid.New(),
		ProposalID:      ev.ProposalID,
		SequenceID:      seq.ID,
		OrganizationID:  ev.OrganizationID,
		Status:          domain.ExecutionActive,
		CurrentStep:     1,
		Log:             []domain.LogEntry{},
		NextExecutionAt: &next,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return domain.ExecutionRecord{}, err
	}

	e.logger.Info("follow-up started",
		"execution_id", rec.ID,
		"proposal_id", rec.ProposalID,
		"sequence_id", rec.SequenceID,
		"next_execution_at", next,
	)

	return rec, nil
}

// resolveSequence prefers an explicit, active sequence owned by the
// organization and falls back to the organization's active default.
func (e *Engine) resolveSequence(ctx context.Context, orgID uuid.UUID, explicit *uuid.UUID) (domain.SequenceDefinition, error) {
	if explicit != nil && *explicit != uuid.Nil {
		seq, err := e.store.GetSequence(ctx, *explicit)
		switch {
		case err == nil && seq.IsActive && seq.OrganizationID == orgID:
			return seq, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return domain.SequenceDefinition{}, err
		}
		e.logger.Debug("requested sequence unusable, falling back to default",
			"sequence_id", *explicit,
			"organization_id", orgID,
		)
	}

	seq, err := e.store.DefaultSequence(ctx, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.SequenceDefinition{}, domain.ErrNoSequenceFound
	}
	if err != nil {
		return domain.SequenceDefinition{}, err
	}
	return seq, nil
}

func conditionsMet(tc domain.TriggerConditions, status domain.ProposalStatus, p domain.ProposalSnapshot) error {
	if len(tc.ProposalStatuses) > 0 && !slices.Contains(tc.ProposalStatuses, status) {
		return fmt.Errorf("%w: status %s not in %v", domain.ErrTriggerConditionsNotMet, status, tc.ProposalStatuses)
	}
	if tc.ProposalValueRange != nil && !tc.ProposalValueRange.Contains(p.Value) {
		return fmt.Errorf("%w: value %.2f outside range", domain.ErrTriggerConditionsNotMet, p.Value)
	}
	if tc.ClientType != "" && tc.ClientType != p.ClientType {
		return fmt.Errorf("%w: client type %q, want %q", domain.ErrTriggerConditionsNotMet, p.ClientType, tc.ClientType)
	}
	return nil
}
