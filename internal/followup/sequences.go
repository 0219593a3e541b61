// SPDX-License-Identifier: Apache-2.0

package followup

import (
	"context"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/sequence"
)

// CreateSequence validates and stores a new definition. Usage counters always
// start at zero.
func (e *Engine) CreateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	def = sequence.Normalize(def)
	if err := sequence.Validate(def); err != nil {
		return domain.SequenceDefinition{}, err
	}

	now := e.Now()
	def.ID = uuid.New()
	def.UsageCount = 0
	def.SuccessRate = 0
	def.CreatedAt = now
	def.UpdatedAt = now

	out, err := e.store.CreateSequence(ctx, def)
	if err != nil {
		return domain.SequenceDefinition{}, err
	}

	e.logger.Info("sequence created",
		"sequence_id", out.ID,
		"organization_id", out.OrganizationID,
		"steps", len(out.Steps),
		"default", out.IsDefault,
	)
	return out, nil
}

// UpdateSequence replaces the editable fields of an existing definition.
// In-flight executions pick up the new wording on their next step.
func (e *Engine) UpdateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	current, err := e.GetSequence(ctx, def.OrganizationID, def.ID)
	if err != nil {
		return domain.SequenceDefinition{}, err
	}

	def = sequence.Normalize(def)
	if err := sequence.Validate(def); err != nil {
		return domain.SequenceDefinition{}, err
	}

	def.UsageCount = current.UsageCount
	def.SuccessRate = current.SuccessRate
	def.CreatedAt = current.CreatedAt
	def.UpdatedAt = e.Now()

	return e.store.UpdateSequence(ctx, def)
}

// GetSequence returns a definition owned by orgID.
func (e *Engine) GetSequence(ctx context.Context, orgID, id uuid.UUID) (domain.SequenceDefinition, error) {
	seq, err := e.store.GetSequence(ctx, id)
	if err != nil {
		return domain.SequenceDefinition{}, err
	}
	if seq.OrganizationID != orgID {
		return domain.SequenceDefinition{}, domain.ErrNotFound
	}
	return seq, nil
}

func (e *Engine) ListSequences(ctx context.Context, orgID uuid.UUID) ([]domain.SequenceDefinition, error) {
	return e.store.ListSequences(ctx, orgID)
}

// SetDefaultSequence makes id the organization's only default.
func (e *Engine) SetDefaultSequence(ctx context.Context, orgID, id uuid.UUID) error {
	if err := e.store.SetDefaultSequence(ctx, orgID, id); err != nil {
		return err
	}
	e.logger.Info("default sequence changed", "organization_id", orgID, "sequence_id", id)
	return nil
}

// SetSequenceActive toggles whether a sequence can start new executions.
// Executions already running continue.
func (e *Engine) SetSequenceActive(ctx context.Context, orgID, id uuid.UUID, active bool) error {
	return e.store.SetSequenceActive(ctx, orgID, id, active)
}
