// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
)

type sequenceRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	OwnerUserID uuid.UUID                `json:"owner_user_id"`
	Trigger     domain.TriggerConditions `json:"trigger_conditions"`
	Steps       []domain.SequenceStep    `json:"steps"`
	Escalation  domain.Escalation        `json:"escalation"`
	IsActive    *bool                    `json:"is_active"`
	IsDefault   bool                     `json:"is_default"`
}

// definition builds the stored shape. Usage statistics are owned by the
// engine and never read from requests.
func (req sequenceRequest) definition(orgID uuid.UUID, active bool) domain.SequenceDefinition {
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return domain.SequenceDefinition{
		OrganizationID: orgID,
		OwnerUserID:    req.OwnerUserID,
		Name:           req.Name,
		Description:    req.Description,
		Trigger:        req.Trigger,
		Steps:          req.Steps,
		Escalation:     req.Escalation,
		IsActive:       active,
		IsDefault:      req.IsDefault,
	}
}

type sequenceHandlers struct {
	svc    SequenceService
	logger *slog.Logger
}

func (h sequenceHandlers) create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}

	var req sequenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	seq, err := h.svc.CreateSequence(r.Context(), req.definition(orgID, true))
	if err != nil {
		writeError(w, h.logger, err, "create sequence", "organization_id", orgID)
		return
	}

	writeJSON(w, http.StatusCreated, seq)
}

func (h sequenceHandlers) list(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}

	seqs, err := h.svc.ListSequences(r.Context(), orgID)
	if err != nil {
		writeError(w, h.logger, err, "list sequences", "organization_id", orgID)
		return
	}
	if seqs == nil {
		seqs = []domain.SequenceDefinition{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sequences": seqs})
}

func (h sequenceHandlers) get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "sequence")
	if !ok {
		return
	}

	seq, err := h.svc.GetSequence(r.Context(), orgID, id)
	if err != nil {
		writeError(w, h.logger, err, "get sequence", "sequence_id", id)
		return
	}

	writeJSON(w, http.StatusOK, seq)
}

// update replaces the definition. An omitted is_active keeps the current value.
func (h sequenceHandlers) update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "sequence")
	if !ok {
		return
	}

	var req sequenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	current, err := h.svc.GetSequence(r.Context(), orgID, id)
	if err != nil {
		writeError(w, h.logger, err, "update sequence", "sequence_id", id)
		return
	}

	def := req.definition(orgID, current.IsActive)
	def.ID = id
	seq, err := h.svc.UpdateSequence(r.Context(), def)
	if err != nil {
		writeError(w, h.logger, err, "update sequence", "sequence_id", id)
		return
	}

	writeJSON(w, http.StatusOK, seq)
}

func (h sequenceHandlers) setDefault(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "sequence")
	if !ok {
		return
	}

	if err := h.svc.SetDefaultSequence(r.Context(), orgID, id); err != nil {
		writeError(w, h.logger, err, "set default sequence", "sequence_id", id)
		return
	}
	h.respondWithSequence(w, r, orgID, id)
}

func (h sequenceHandlers) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := organizationID(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "sequence")
		if !ok {
			return
		}

		if err := h.svc.SetSequenceActive(r.Context(), orgID, id, active); err != nil {
			writeError(w, h.logger, err, "set sequence active", "sequence_id", id, "active", active)
			return
		}

		h.logger.Info("sequence activation changed", "sequence_id", id, "active", active)
		h.respondWithSequence(w, r, orgID, id)
	}
}

func (h sequenceHandlers) respondWithSequence(w http.ResponseWriter, r *http.Request, orgID, id uuid.UUID) {
	seq, err := h.svc.GetSequence(r.Context(), orgID, id)
	if err != nil {
		writeError(w, h.logger, err, "get sequence", "sequence_id", id)
		return
	}
	writeJSON(w, http.StatusOK, seq)
}
