// SPDX-License-Identifier: Apache-2.0

package followup

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/metrics"
	"github.com/proposalai/followups/internal/sequence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const day = 24 * time.Hour

// EscalationResult summarizes one escalation pass.
type EscalationResult struct {
	Candidates       int  `json:"candidates"`
	Escalated        int  `json:"escalated"`
	Notices          int  `json:"notices"`
	DispatchFailures int  `json:"dispatch_failures"`
	Aborted          bool `json:"aborted"`
}

// DaysSinceLastAction is the number of whole days between the record's newest
// log entry (or creation) and now.
func DaysSinceLastAction(rec domain.ExecutionRecord, now time.Time) int {
	d := now.Sub(rec.LastActionAt())
	if d < 0 {
		return 0
	}
	return int(d / day)
}

// RunEscalations notifies escalation recipients for ACTIVE executions that
// have been idle for at least their sequence's escalation.after_days. Each
// execution is escalated at most once and its status never changes.
func (e *Engine) RunEscalations(ctx context.Context, now time.Time) (EscalationResult, error) {
	now = now.UTC()
	ctx, span := tracer.Start(ctx, "followup.RunEscalations")
	defer span.End()

	var res EscalationResult
	abort := func(err error) (EscalationResult, error) {
		res.Aborted = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "escalation pass aborted")
		metrics.IncPass("escalation", "aborted")
		e.logger.Error("escalation pass aborted", "escalated", res.Escalated, "error", err)
		return res, err
	}

	candidates, err := e.store.ListEscalationCandidates(ctx)
	if err != nil {
		return abort(err)
	}
	res.Candidates = len(candidates)
	span.SetAttributes(attribute.Int("followup.escalation_candidates", len(candidates)))

	sequences := make(map[uuid.UUID]*domain.SequenceDefinition)

	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}

		seq, ok := sequences[rec.SequenceID]
		if !ok {
			s, err := e.store.GetSequence(ctx, rec.SequenceID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
			case err != nil:
				return abort(err)
			default:
				seq = &s
			}
			sequences[rec.SequenceID] = seq
		}
		if seq == nil || !seq.Escalation.Enabled || len(seq.Escalation.EscalateTo) == 0 {
			continue
		}

		days := DaysSinceLastAction(rec, now)
		if days < seq.Escalation.AfterDays {
			continue
		}

		// Every store read happens before the claim: once escalated_at is set
		// the record never comes back as a candidate.
		subject, body, err := e.escalationNotice(ctx, rec, *seq, days)
		if err != nil {
			return abort(err)
		}
		if err := e.store.ClaimEscalation(ctx, rec.ID, now); err != nil {
			if errors.Is(err, domain.ErrClaimLost) {
				continue
			}
			return abort(err)
		}

		entries, failed := e.escalate(ctx, rec, seq.Escalation.EscalateTo, subject, body, now)
		if err := e.store.AppendLog(ctx, rec.ID, entries); err != nil {
			return abort(err)
		}

		res.Escalated++
		res.Notices += len(entries)
		res.DispatchFailures += failed
		metrics.IncEscalations()
		e.logger.Info("execution escalated",
			"execution_id", rec.ID,
			"proposal_id", rec.ProposalID,
			"days_since_last_action", days,
			"recipients", len(entries),
			"dispatch_failures", failed,
		)
	}

	metrics.IncPass("escalation", "ok")
	return res, nil
}

// escalationNotice renders the subject and body sent to every recipient.
func (e *Engine) escalationNotice(ctx context.Context, rec domain.ExecutionRecord, seq domain.SequenceDefinition, days int) (subject, body string, err error) {
	vars := map[string]string{}
	proposal, err := e.proposals.GetProposal(ctx, rec.ProposalID)
	switch {
	case err == nil:
		vars = sequence.Variables(proposal)
	case !errors.Is(err, domain.ErrNotFound):
		return "", "", err
	}
	vars["days_since_last_action"] = strconv.Itoa(days)
	vars["step_number"] = strconv.Itoa(rec.CurrentStep)

	subject = "Follow-up stalled"
	if t := vars["proposal_title"]; t != "" {
		subject += ": " + t
	}
	return subject, sequence.Render(seq.Escalation.Message, vars), nil
}

func (e *Engine) escalate(ctx context.Context, rec domain.ExecutionRecord, recipients []string, subject, body string, now time.Time) ([]domain.LogEntry, int) {
	entries := make([]domain.LogEntry, 0, len(recipients))
	failed := 0
	for _, to := range recipients {
		entry := e.dispatch(ctx, domain.Message{
			To:      to,
			Subject: subject,
			Body:    body,
			Tags: map[string]string{
				"execution_id": rec.ID.String(),
				"kind":         string(domain.LogEscalation),
			},
		}, domain.LogEscalation, rec.CurrentStep, now)
		if entry.DeliveryStatus == domain.DeliveryFailed {
			failed++
		}
		entries = append(entries, entry)
	}
	return entries, failed
}
