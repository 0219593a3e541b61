// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/followup"
)

type triggerRequest struct {
	ProposalID uuid.UUID             `json:"proposal_id"`
	NewStatus  domain.ProposalStatus `json:"new_status"`
	Timestamp  *time.Time            `json:"timestamp"`
	SequenceID *uuid.UUID            `json:"sequence_id"`
}

type executionHandlers struct {
	svc    ExecutionService
	logger *slog.Logger
}

func (h executionHandlers) trigger(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}

	var req triggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.ProposalID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "proposal_id is required"})
		return
	}

	ev := followup.TriggerEvent{
		ProposalID:     req.ProposalID,
		OrganizationID: orgID,
		NewStatus:      req.NewStatus,
		SequenceID:     req.SequenceID,
	}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}

	rec, err := h.svc.Trigger(r.Context(), ev)
	if err != nil {
		writeError(w, h.logger, err, "trigger follow-up", "proposal_id", req.ProposalID)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h executionHandlers) listActive(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}

	recs, err := h.svc.ListActiveExecutions(r.Context(), orgID)
	if err != nil {
		writeError(w, h.logger, err, "list executions", "organization_id", orgID)
		return
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": recs})
}

func (h executionHandlers) get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "execution")
	if !ok {
		return
	}

	rec, err := h.svc.GetExecution(r.Context(), orgID, id)
	if err != nil {
		writeError(w, h.logger, err, "get execution", "execution_id", id)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h executionHandlers) pause(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "pause execution", h.svc.Pause)
}

func (h executionHandlers) resume(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "resume execution", h.svc.Resume)
}

func (h executionHandlers) stop(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, "stop execution", h.svc.Stop)
}

func (h executionHandlers) operate(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	action func(ctx context.Context, orgID, id uuid.UUID) (domain.ExecutionRecord, error),
) {
	orgID, ok := organizationID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "execution")
	if !ok {
		return
	}

	rec, err := action(r.Context(), orgID, id)
	if err != nil {
		writeError(w, h.logger, err, op, "execution_id", id)
		return
	}

	h.logger.Info("execution updated via API", "execution_id", id, "status", rec.Status)
	writeJSON(w, http.StatusOK, rec)
}
