// SPDX-License-Identifier: Apache-2.0

package followup

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/metrics"
	"github.com/proposalai/followups/internal/sequence"
	"go.opentelemetry.io/otel/attribute"
)

var errNoRecipient = errors.New("client has no email address")

// executeStep computes the mutations for one claimed record. It dispatches at
// most one message and never writes to the store itself.
func (e *Engine) executeStep(ctx context.Context, rec domain.ExecutionRecord, now time.Time) (domain.StepResult, bool, error) {
	ctx, span := tracer.Start(ctx, "followup.executeStep")
	defer span.End()
	span.SetAttributes(
		attribute.String("followup.execution_id", rec.ID.String()),
		attribute.Int("followup.step", rec.CurrentStep),
	)

	proposal, err := e.proposals.GetProposal(ctx, rec.ProposalID)
	if errors.Is(err, domain.ErrNotFound) {
		return stopped(rec, domain.ReasonProposalMissing, now), false, nil
	}
	if err != nil {
		return domain.StepResult{}, false, err
	}

	seq, err := e.store.GetSequence(ctx, rec.SequenceID)
	if errors.Is(err, domain.ErrNotFound) {
		return stopped(rec, domain.ReasonSequenceMissing, now), false, nil
	}
	if err != nil {
		return domain.StepResult{}, false, err
	}

	step, ok := seq.Step(rec.CurrentStep)
	if !ok {
		// The sequence was shortened after this run started.
		return completed(rec.CurrentStep, nil, now), false, nil
	}

	for _, cond := range step.StopConditions {
		if reason, met := proposal.StopConditionMet(cond); met {
			return stopped(rec, reason, now), false, nil
		}
	}

	vars := sequence.Variables(proposal)
	vars["step_number"] = strconv.Itoa(step.StepNumber)

	msg := domain.Message{
		To:      proposal.ClientEmail,
		Subject: sequence.Render(step.Message.Subject, vars),
		Body:    sequence.Render(step.Message.Body, vars),
		Tags: map[string]string{
			"execution_id": rec.ID.String(),
			"proposal_id":  rec.ProposalID.String(),
			"step":         strconv.Itoa(step.StepNumber),
		},
	}
	entry := e.dispatch(ctx, msg, domain.LogStep, step.StepNumber, now)
	dispatchFailed := entry.DeliveryStatus == domain.DeliveryFailed
	if dispatchFailed {
		e.logger.Warn("step dispatch failed",
			"execution_id", rec.ID,
			"step", step.StepNumber,
			"error", entry.Error,
		)
	}

	if rec.CurrentStep >= seq.LastStep() {
		return completed(rec.CurrentStep, []domain.LogEntry{entry}, now), dispatchFailed, nil
	}

	nextStep := rec.CurrentStep + 1
	following, _ := seq.Step(nextStep)
	next := now.AddDate(0, 0, following.DelayDays)

	return domain.StepResult{
		Status:          domain.ExecutionActive,
		CurrentStep:     nextStep,
		NextExecutionAt: &next,
		Append:          []domain.LogEntry{entry},
	}, dispatchFailed, nil
}

// dispatch sends msg once and returns the log entry describing the attempt.
func (e *Engine) dispatch(ctx context.Context, msg domain.Message, kind domain.LogEntryKind, step int, now time.Time) domain.LogEntry {
	entry := domain.LogEntry{
		Kind:       kind,
		StepNumber: step,
		ExecutedAt: now,
		Recipient:  msg.To,
		Subject:    msg.Subject,
	}

	var (
		id  string
		err error
	)
	if msg.To == "" {
		err = errNoRecipient
	} else {
		id, err = e.dispatcher.Send(ctx, msg)
	}

	if err != nil {
		entry.DeliveryStatus = domain.DeliveryFailed
		entry.Error = err.Error()
	} else {
		entry.Dispatched = true
		entry.MessageID = id
		entry.DeliveryStatus = domain.DeliverySent
	}
	metrics.IncDispatch(entry.DeliveryStatus)

	return entry
}

func stopped(rec domain.ExecutionRecord, reason domain.StoppedReason, now time.Time) domain.StepResult {
	return domain.StepResult{
		Status:        domain.ExecutionStopped,
		CurrentStep:   rec.CurrentStep,
		StoppedReason: reason,
		FinishedAt:    &now,
	}
}

func completed(step int, appendEntries []domain.LogEntry, now time.Time) domain.StepResult {
	return domain.StepResult{
		Status:        domain.ExecutionCompleted,
		CurrentStep:   step,
		StoppedReason: domain.ReasonSequenceCompleted,
		Append:        appendEntries,
		FinishedAt:    &now,
	}
}
