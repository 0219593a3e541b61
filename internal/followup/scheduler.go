// SPDX-License-Identifier: Apache-2.0

package followup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// PassResult summarizes one scheduler pass.
type PassResult struct {
	Due              int  `json:"due"`
	Processed        int  `json:"processed"`
	Completed        int  `json:"completed"`
	Stopped          int  `json:"stopped"`
	Advanced         int  `json:"advanced"`
	ClaimsLost       int  `json:"claims_lost"`
	DispatchFailures int  `json:"dispatch_failures"`
	Aborted          bool `json:"aborted"`
}

type stepOutcome struct {
	status         domain.ExecutionStatus
	claimLost      bool
	dispatchFailed bool
}

func (r *PassResult) add(o stepOutcome) {
	if o.claimLost {
		r.ClaimsLost++
		return
	}
	if o.status == "" {
		return
	}
	r.Processed++
	switch o.status {
	case domain.ExecutionCompleted:
		r.Completed++
	case domain.ExecutionStopped:
		r.Stopped++
	case domain.ExecutionActive:
		r.Advanced++
	}
	if o.dispatchFailed {
		r.DispatchFailures++
	}
}

// ResolveDue returns the executions due at now, oldest-due first.
func (e *Engine) ResolveDue(ctx context.Context, now time.Time) ([]domain.ExecutionRecord, error) {
	return e.store.ListDue(ctx, now.UTC(), e.batchSize)
}

// ProcessDue runs one scheduler pass: it resolves the due set and executes
// the current step of each record, up to Concurrency at a time, in due order.
//
// A record claimed by a concurrent pass is skipped. A store failure stops the
// pass from starting further records and is returned; records committed
// before the failure keep their new state.
func (e *Engine) ProcessDue(ctx context.Context, now time.Time) (PassResult, error) {
	now = now.UTC()
	ctx, span := tracer.Start(ctx, "followup.ProcessDue")
	defer span.End()

	var res PassResult

	due, err := e.ResolveDue(ctx, now)
	if err != nil {
		res.Aborted = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve due")
		metrics.IncPass("due", "aborted")
		e.logger.Error("resolve due failed", "error", err)
		return res, err
	}
	res.Due = len(due)
	metrics.SetDueBacklog(len(due))
	span.SetAttributes(attribute.Int("followup.due", len(due)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, rec := range due {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			// In-flight records finish on ctx so a sibling failure does not
			// interrupt a dispatch that has already started.
			out, err := e.processOne(ctx, rec, now)

			mu.Lock()
			res.add(out)
			mu.Unlock()

			return err
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		res.Aborted = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass aborted")
		metrics.IncPass("due", "aborted")
		e.logger.Error("scheduler pass aborted",
			"due", res.Due,
			"processed", res.Processed,
			"error", err,
		)
		return res, err
	}

	metrics.IncPass("due", "ok")
	if res.Due > 0 {
		e.logger.Info("scheduler pass finished",
			"due", res.Due,
			"processed", res.Processed,
			"advanced", res.Advanced,
			"completed", res.Completed,
			"stopped", res.Stopped,
			"claims_lost", res.ClaimsLost,
			"dispatch_failures", res.DispatchFailures,
		)
	}
	return res, nil
}

// processOne claims rec, executes its step and commits the result.
func (e *Engine) processOne(ctx context.Context, rec domain.ExecutionRecord, now time.Time) (stepOutcome, error) {
	started := time.Now()
	claimed, err := e.store.Claim(ctx, rec.ID, rec.Version, now, e.claimTTL)
	metrics.ObserveClaimLatency(time.Since(started))
	if errors.Is(err, domain.ErrClaimLost) {
		metrics.IncClaimsLost()
		e.logger.Debug("claim lost", "execution_id", rec.ID, "version", rec.Version)
		return stepOutcome{claimLost: true}, nil
	}
	if err != nil {
		return stepOutcome{}, err
	}

	result, dispatchFailed, err := e.executeStep(ctx, claimed, now)
	metrics.ObserveStepDuration(time.Since(started))
	if err != nil {
		e.logger.Error("step execution failed",
			"execution_id", claimed.ID,
			"step", claimed.CurrentStep,
			"error", err,
		)
		e.releaseClaim(ctx, claimed)
		return stepOutcome{}, err
	}

	if _, err := e.store.ApplyResult(ctx, claimed.ID, claimed.Version, result); err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			metrics.IncClaimsLost()
			e.logger.Warn("claim expired before commit",
				"execution_id", claimed.ID,
				"step", claimed.CurrentStep,
			)
			return stepOutcome{claimLost: true}, nil
		}
		return stepOutcome{}, err
	}

	metrics.IncTransition(result.Status)
	e.logger.Info("step processed",
		"execution_id", claimed.ID,
		"proposal_id", claimed.ProposalID,
		"step", claimed.CurrentStep,
		"status", result.Status,
		"stopped_reason", result.StoppedReason,
		"next_execution_at", result.NextExecutionAt,
	)

	if result.Status.Terminal() {
		if err := e.store.RecordOutcome(ctx, claimed.SequenceID, result.StoppedReason.Successful()); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return stepOutcome{status: result.Status, dispatchFailed: dispatchFailed}, err
		}
	}

	return stepOutcome{status: result.Status, dispatchFailed: dispatchFailed}, nil
}

// releaseClaim writes the claimed record back unchanged so the next pass can
// retry it without waiting for the claim to expire. executeStep only fails
// before dispatching, so nothing was sent for this step. A failed release
// leaves the claim to expire after the claim TTL.
func (e *Engine) releaseClaim(ctx context.Context, rec domain.ExecutionRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	_, err := e.store.ApplyResult(ctx, rec.ID, rec.Version, domain.StepResult{
		Status:          rec.Status,
		CurrentStep:     rec.CurrentStep,
		StoppedReason:   rec.StoppedReason,
		NextExecutionAt: rec.NextExecutionAt,
		FinishedAt:      rec.FinishedAt,
	})
	if err != nil {
		e.logger.Warn("release claim failed", "execution_id", rec.ID, "error", err)
	}
}
