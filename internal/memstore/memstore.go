// SPDX-License-Identifier: Apache-2.0

// Package memstore is an in-memory implementation of the follow-up store,
// proposal reader and API key registry. It backs single-process deployments
// and tests, and honours the same constraints as the Postgres schema.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/auth"
	"github.com/proposalai/followups/internal/domain"
)

type apiKey struct {
	record    domain.APIKeyRecord
	tokenHash string
	revoked   bool
}

type execution struct {
	rec         domain.ExecutionRecord
	escalatedAt *time.Time
}

type sequenceStats struct {
	finished   int
	successful int
}

type Store struct {
	mu         sync.Mutex
	sequences  map[uuid.UUID]domain.SequenceDefinition
	stats      map[uuid.UUID]sequenceStats
	executions map[uuid.UUID]*execution
	proposals  map[uuid.UUID]domain.ProposalSnapshot
	apiKeys    map[uuid.UUID]*apiKey
}

func New() *Store {
	return &Store{
		sequences:  make(map[uuid.UUID]domain.SequenceDefinition),
		stats:      make(map[uuid.UUID]sequenceStats),
		executions: make(map[uuid.UUID]*execution),
		proposals:  make(map[uuid.UUID]domain.ProposalSnapshot),
		apiKeys:    make(map[uuid.UUID]*apiKey),
	}
}

// Check implements the health check used by /healthz.
func (s *Store) Check(context.Context) error {
	return nil
}

// ---------------- SEQUENCES ----------------

func (s *Store) CreateSequence(_ context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	if def.IsDefault {
		s.unsetDefaultsLocked(def.OrganizationID)
	}
	s.sequences[def.ID] = cloneSequence(def)
	return cloneSequence(def), nil
}

func (s *Store) UpdateSequence(_ context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sequences[def.ID]
	if !ok || current.OrganizationID != def.OrganizationID {
		return domain.SequenceDefinition{}, domain.ErrNotFound
	}
	if def.IsDefault {
		s.unsetDefaultsLocked(def.OrganizationID)
	}
	def.UsageCount = current.UsageCount
	def.SuccessRate = current.SuccessRate
	def.CreatedAt = current.CreatedAt
	s.sequences[def.ID] = cloneSequence(def)
	return cloneSequence(def), nil
}

func (s *Store) GetSequence(_ context.Context, id uuid.UUID) (domain.SequenceDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[id]
	if !ok {
		return domain.SequenceDefinition{}, domain.ErrNotFound
	}
	return cloneSequence(seq), nil
}

func (s *Store) ListSequences(_ context.Context, orgID uuid.UUID) ([]domain.SequenceDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SequenceDefinition, 0)
	for _, seq := range s.sequences {
		if seq.OrganizationID == orgID {
			out = append(out, cloneSequence(seq))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) DefaultSequence(_ context.Context, orgID uuid.UUID) (domain.SequenceDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seq := range s.sequences {
		if seq.OrganizationID == orgID && seq.IsDefault && seq.IsActive {
			return cloneSequence(seq), nil
		}
	}
	return domain.SequenceDefinition{}, domain.ErrNotFound
}

func (s *Store) SetDefaultSequence(_ context.Context, orgID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[id]
	if !ok || seq.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	s.unsetDefaultsLocked(orgID)
	seq.IsDefault = true
	seq.UpdatedAt = time.Now().UTC()
	s.sequences[id] = seq
	return nil
}

func (s *Store) SetSequenceActive(_ context.Context, orgID, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[id]
	if !ok || seq.OrganizationID != orgID {
		return domain.ErrNotFound
	}
	seq.IsActive = active
	seq.UpdatedAt = time.Now().UTC()
	s.sequences[id] = seq
	return nil
}

func (s *Store) RecordOutcome(_ context.Context, id uuid.UUID, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[id]
	if !ok {
		return domain.ErrNotFound
	}
	st := s.stats[id]
	st.finished++
	if success {
		st.successful++
	}
	s.stats[id] = st
	seq.SuccessRate = float64(st.successful) / float64(st.finished)
	s.sequences[id] = seq
	return nil
}

func (s *Store) unsetDefaultsLocked(orgID uuid.UUID) {
	for id, seq := range s.sequences {
		if seq.OrganizationID == orgID && seq.IsDefault {
			seq.IsDefault = false
			s.sequences[id] = seq
		}
	}
}

// ---------------- EXECUTIONS ----------------

func (s *Store) CreateExecution(_ context.Context, rec domain.ExecutionRecord) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status == domain.ExecutionActive && s.activeForLocked(rec.ProposalID, uuid.Nil) {
		return domain.ExecutionRecord{}, domain.ErrAlreadyActive
	}
	seq, ok := s.sequences[rec.SequenceID]
	if !ok {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	s.executions[rec.ID] = &execution{rec: cloneExecution(rec)}

	seq.UsageCount++
	s.sequences[rec.SequenceID] = seq

	return cloneExecution(rec), nil
}

func (s *Store) GetExecution(_ context.Context, id uuid.UUID) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.executions[id]
	if !ok {
		return domain.ExecutionRecord{}, domain.ErrNotFound
	}
	return cloneExecution(ex.rec), nil
}

func (s *Store) FindActiveExecution(_ context.Context, proposalID uuid.UUID) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ex := range s.executions {
		if ex.rec.ProposalID == proposalID && ex.rec.Status == domain.ExecutionActive {
			return cloneExecution(ex.rec), nil
		}
	}
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

// ListActiveExecutions returns the organization's ACTIVE and PAUSED
// executions, newest first.
func (s *Store) ListActiveExecutions(_ context.Context, orgID uuid.UUID) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ExecutionRecord, 0)
	for _, ex := range s.executions {
		if ex.rec.OrganizationID != orgID {
			continue
		}
		if ex.rec.Status == domain.ExecutionActive || ex.rec.Status == domain.ExecutionPaused {
			out = append(out, cloneExecution(ex.rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ExecutionRecord, 0)
	for _, ex := range s.executions {
		if ex.rec.Due(now) {
			out = append(out, cloneExecution(ex.rec))
		}
	}
	sortByNextExecution(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Claim(_ context.Context, id uuid.UUID, version int64, now time.Time, ttl time.Duration) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.executions[id]
	if !ok || ex.rec.Version != version || !ex.rec.Due(now) {
		return domain.ExecutionRecord{}, domain.ErrClaimLost
	}

	until := now.Add(ttl)
	ex.rec.ClaimedUntil = &until
	ex.rec.Version++
	ex.rec.UpdatedAt = now
	return cloneExecution(ex.rec), nil
}

func (s *Store) ApplyResult(_ context.Context, id uuid.UUID, version int64, res domain.StepResult) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.executions[id]
	if !ok || ex.rec.Version != version {
		return domain.ExecutionRecord{}, domain.ErrClaimLost
	}
	if res.Status == domain.ExecutionActive && ex.rec.Status != domain.ExecutionActive &&
		s.activeForLocked(ex.rec.ProposalID, id) {
		return domain.ExecutionRecord{}, domain.ErrAlreadyActive
	}

	ex.rec.Status = res.Status
	ex.rec.CurrentStep = res.CurrentStep
	ex.rec.StoppedReason = res.StoppedReason
	ex.rec.NextExecutionAt = cloneTime(res.NextExecutionAt)
	ex.rec.FinishedAt = cloneTime(res.FinishedAt)
	ex.rec.Log = append(ex.rec.Log, res.Append...)
	ex.rec.ClaimedUntil = nil
	ex.rec.Version++
	ex.rec.UpdatedAt = time.Now().UTC()
	return cloneExecution(ex.rec), nil
}

func (s *Store) ListEscalationCandidates(context.Context) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ExecutionRecord, 0)
	for _, ex := range s.executions {
		if ex.rec.Status == domain.ExecutionActive && ex.escalatedAt == nil {
			out = append(out, cloneExecution(ex.rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) ClaimEscalation(_ context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.executions[id]
	if !ok || ex.escalatedAt != nil || ex.rec.Status != domain.ExecutionActive {
		return domain.ErrClaimLost
	}
	at := now
	ex.escalatedAt = &at
	return nil
}

func (s *Store) AppendLog(_ context.Context, id uuid.UUID, entries []domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.executions[id]
	if !ok {
		return domain.ErrNotFound
	}
	ex.rec.Log = append(ex.rec.Log, entries...)
	ex.rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) activeForLocked(proposalID, except uuid.UUID) bool {
	for id, ex := range s.executions {
		if id != except && ex.rec.ProposalID == proposalID && ex.rec.Status == domain.ExecutionActive {
			return true
		}
	}
	return false
}

// ---------------- PROPOSALS ----------------

// PutProposal inserts or replaces a proposal snapshot.
func (s *Store) PutProposal(p domain.ProposalSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = p
}

// UpdateProposal applies fn to a stored proposal.
func (s *Store) UpdateProposal(id uuid.UUID, fn func(*domain.ProposalSnapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&p)
	s.proposals[id] = p
	return nil
}

func (s *Store) DeleteProposal(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.proposals, id)
}

func (s *Store) GetProposal(_ context.Context, id uuid.UUID) (domain.ProposalSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return domain.ProposalSnapshot{}, domain.ErrNotFound
	}
	return p, nil
}

// ---------------- API KEYS ----------------

func (s *Store) ResolveAPIKey(_ context.Context, bearerToken string) (auth.APIKey, bool, error) {
	if bearerToken == "" {
		return auth.APIKey{}, false, nil
	}
	hash := auth.HashToken(bearerToken)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.apiKeys {
		if k.tokenHash != hash || k.revoked {
			continue
		}
		used := time.Now().UTC()
		k.record.LastUsedAt = &used
		return auth.APIKey{
			ID:                k.record.ID,
			OrganizationID:    k.record.OrganizationID,
			MaxRequestsPerMin: k.record.MaxRequestsPerMin,
		}, true, nil
	}
	return auth.APIKey{}, false, nil
}

func (s *Store) CreateAPIKey(_ context.Context, params domain.CreateAPIKeyParams) (domain.CreatedAPIKey, error) {
	params, err := params.Normalized()
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}

	token, hash, err := auth.NewToken()
	if err != nil {
		return domain.CreatedAPIKey{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.apiKeys[id] = &apiKey{
		record: domain.APIKeyRecord{
			ID:                id,
			Name:              params.Name,
			OrganizationID:    params.OrganizationID,
			TokenPrefix:       auth.DisplayPrefix(token),
			MaxRequestsPerMin: params.MaxRequestsPerMin,
			CreatedAt:         time.Now().UTC(),
		},
		tokenHash: hash,
	}
	return domain.CreatedAPIKey{ID: id, OrganizationID: params.OrganizationID, Token: token}, nil
}

func (s *Store) ListAPIKeys(context.Context) ([]domain.APIKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.APIKeyRecord, 0, len(s.apiKeys))
	for _, k := range s.apiKeys {
		if !k.revoked {
			out = append(out, copyAPIKey(k.record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok || k.revoked {
		return domain.ErrNotFound
	}
	k.revoked = true
	return nil
}

// ---------------- COPIES ----------------

func copyAPIKey(rec domain.APIKeyRecord) domain.APIKeyRecord {
	if rec.LastUsedAt != nil {
		used := *rec.LastUsedAt
		rec.LastUsedAt = &used
	}
	return rec
}

func sortByNextExecution(recs []domain.ExecutionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].NextExecutionAt, recs[j].NextExecutionAt
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneExecution(rec domain.ExecutionRecord) domain.ExecutionRecord {
	rec.Log = slices.Clone(rec.Log)
	if rec.Log == nil {
		rec.Log = []domain.LogEntry{}
	}
	rec.NextExecutionAt = cloneTime(rec.NextExecutionAt)
	rec.ClaimedUntil = cloneTime(rec.ClaimedUntil)
	rec.FinishedAt = cloneTime(rec.FinishedAt)
	return rec
}

func cloneSequence(def domain.SequenceDefinition) domain.SequenceDefinition {
	steps := make([]domain.SequenceStep, len(def.Steps))
	for i, st := range def.Steps {
		st.StopConditions = slices.Clone(st.StopConditions)
		steps[i] = st
	}
	def.Steps = steps
	def.Trigger.ProposalStatuses = slices.Clone(def.Trigger.ProposalStatuses)
	if r := def.Trigger.ProposalValueRange; r != nil {
		cp := *r
		def.Trigger.ProposalValueRange = &cp
	}
	def.Escalation.EscalateTo = slices.Clone(def.Escalation.EscalateTo)
	return def
}
