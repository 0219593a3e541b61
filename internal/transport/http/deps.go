// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/followup"
	"github.com/proposalai/followups/internal/transport/middleware"
)

type SequenceService interface {
	CreateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error)
	UpdateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error)
	GetSequence(ctx context.Context, orgID, id uuid.UUID) (domain.SequenceDefinition, error)
	ListSequences(ctx context.Context, orgID uuid.UUID) ([]domain.SequenceDefinition, error)
	SetDefaultSequence(ctx context.Context, orgID, id uuid.UUID) error
	SetSequenceActive(ctx context.Context, orgID, id uuid.UUID, active bool) error
}

type ExecutionService interface {
	Trigger(ctx context.Context, ev followup.TriggerEvent) (domain.ExecutionRecord, error)
	GetExecution(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error)
	ListActiveExecutions(ctx context.Context, orgID uuid.UUID) ([]domain.ExecutionRecord, error)
	Pause(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error)
	Resume(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error)
	Stop(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error)
}

// PassRunner runs one scheduler or escalation pass on demand.
type PassRunner interface {
	Now() time.Time
	ProcessDue(ctx context.Context, now time.Time) (followup.PassResult, error)
	RunEscalations(ctx context.Context, now time.Time) (followup.EscalationResult, error)
}

type APIKeyResolver = middleware.APIKeyResolver

type APIKeyManager interface {
	CreateAPIKey(ctx context.Context, params domain.CreateAPIKeyParams) (domain.CreatedAPIKey, error)
	ListAPIKeys(ctx context.Context) ([]domain.APIKeyRecord, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
