// SPDX-License-Identifier: Apache-2.0

// Package followup implements the follow-up sequencing engine: trigger
// evaluation, due-set resolution, step execution and escalation.
//
// The engine holds no state of its own. Every mutation goes through the
// Store, and a due record is claimed with a version compare-and-swap before
// a step runs, so any number of passes may overlap safely.
package followup

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/proposalai/followups/internal/followup")

// SequenceStore persists sequence definitions. Implementations report missing
// rows with domain.ErrNotFound and wrap infrastructure failures with
// domain.ErrStoreUnavailable.
type SequenceStore interface {
	// CreateSequence inserts def. When def.IsDefault is set, every other
	// default of the organization is unset in the same transaction.
	CreateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error)
	UpdateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error)
	GetSequence(ctx context.Context, id uuid.UUID) (domain.SequenceDefinition, error)
	ListSequences(ctx context.Context, orgID uuid.UUID) ([]domain.SequenceDefinition, error)
	// DefaultSequence returns the organization's sequence that is both default and active.
	DefaultSequence(ctx context.Context, orgID uuid.UUID) (domain.SequenceDefinition, error)
	SetDefaultSequence(ctx context.Context, orgID, id uuid.UUID) error
	SetSequenceActive(ctx context.Context, orgID, id uuid.UUID, active bool) error
	RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	// CreateExecution inserts rec and increments the owning sequence's usage
	// count atomically. It fails with domain.ErrAlreadyActive when the proposal
	// already has an ACTIVE record.
	CreateExecution(ctx context.Context, rec domain.ExecutionRecord) (domain.ExecutionRecord, error)
	GetExecution(ctx context.Context, id uuid.UUID) (domain.ExecutionRecord, error)
	FindActiveExecution(ctx context.Context, proposalID uuid.UUID) (domain.ExecutionRecord, error)
	// ListActiveExecutions returns the organization's ACTIVE and PAUSED
	// executions, newest first.
	ListActiveExecutions(ctx context.Context, orgID uuid.UUID) ([]domain.ExecutionRecord, error)

	// ListDue returns ACTIVE, unclaimed records with next_execution_at <= now,
	// oldest-due first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ExecutionRecord, error)
	// Claim marks a due record as being processed until now+ttl. It succeeds
	// only if the record is still due at version; otherwise domain.ErrClaimLost.
	Claim(ctx context.Context, id uuid.UUID, version int64, now time.Time, ttl time.Duration) (domain.ExecutionRecord, error)
	// ApplyResult writes res in a single conditional update keyed by version,
	// appends res.Append to the log, bumps the version and clears any claim.
	ApplyResult(ctx context.Context, id uuid.UUID, version int64, res domain.StepResult) (domain.ExecutionRecord, error)

	// ListEscalationCandidates returns ACTIVE records not yet escalated.
	ListEscalationCandidates(ctx context.Context) ([]domain.ExecutionRecord, error)
	// ClaimEscalation marks the record escalated at now, once. A second call
	// fails with domain.ErrClaimLost.
	ClaimEscalation(ctx context.Context, id uuid.UUID, now time.Time) error
	AppendLog(ctx context.Context, id uuid.UUID, entries []domain.LogEntry) error
}

type Store interface {
	SequenceStore
	ExecutionStore
}

// ProposalReader returns current proposal and client state, or domain.ErrNotFound.
type ProposalReader interface {
	GetProposal(ctx context.Context, id uuid.UUID) (domain.ProposalSnapshot, error)
}

// Dispatcher sends one message and returns the provider message id.
type Dispatcher interface {
	Send(ctx context.Context, msg domain.Message) (string, error)
}

type Deps struct {
	Store      Store
	Proposals  ProposalReader
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Now        func() time.Time

	Concurrency int
	BatchSize   int
	ClaimTTL    time.Duration
}

type Engine struct {
	store       Store
	proposals   ProposalReader
	dispatcher  Dispatcher
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
	batchSize   int
	claimTTL    time.Duration
}

func New(deps Deps) *Engine {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	batch := deps.BatchSize
	if batch <= 0 {
		batch = 100
	}

	ttl := deps.ClaimTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Engine{
		store:       deps.Store,
		proposals:   deps.Proposals,
		dispatcher:  deps.Dispatcher,
		logger:      l.With("component", "followup"),
		now:         now,
		concurrency: concurrency,
		batchSize:   batch,
		claimTTL:    ttl,
	}
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}
