// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExecutionStatusConstants(t *testing.T) {
	if ExecutionActive != "ACTIVE" {
		t.Fatalf("unexpected ExecutionActive value: %s", ExecutionActive)
	}
	if ExecutionPaused != "PAUSED" {
		t.Fatalf("unexpected ExecutionPaused value: %s", ExecutionPaused)
	}
	if ExecutionCompleted != "COMPLETED" {
		t.Fatalf("unexpected ExecutionCompleted value: %s", ExecutionCompleted)
	}
	if ExecutionStopped != "STOPPED" {
		t.Fatalf("unexpected ExecutionStopped value: %s", ExecutionStopped)
	}

	if ExecutionActive.Terminal() || ExecutionPaused.Terminal() {
		t.Fatal("expected ACTIVE and PAUSED to be non-terminal")
	}
	if !ExecutionCompleted.Terminal() || !ExecutionStopped.Terminal() {
		t.Fatal("expected COMPLETED and STOPPED to be terminal")
	}
}

func TestStoppedReasonSuccessful(t *testing.T) {
	cases := []struct {
		reason StoppedReason
		want   bool
	}{
		{ReasonProposalAccepted, true},
		{ReasonClientResponded, true},
		{ReasonProposalRejected, false},
		{ReasonManualStop, false},
		{ReasonSequenceCompleted, false},
		{ReasonProposalMissing, false},
	}

	for _, tc := range cases {
		if got := tc.reason.Successful(); got != tc.want {
			t.Fatalf("%s.Successful(): expected %v got %v", tc.reason, tc.want, got)
		}
	}
}

func TestStopConditionMet(t *testing.T) {
	p := ProposalSnapshot{Status: ProposalAccepted}

	reason, ok := p.StopConditionMet(StopProposalAccepted)
	if !ok || reason != ReasonProposalAccepted {
		t.Fatalf("expected accepted stop, got %s %v", reason, ok)
	}
	if _, ok := p.StopConditionMet(StopProposalRejected); ok {
		t.Fatal("rejected condition must not hold for accepted proposal")
	}
	if _, ok := p.StopConditionMet(StopClientResponded); ok {
		t.Fatal("client responded must not hold without reply")
	}

	p.ClientReplied = true
	if reason, ok := p.StopConditionMet(StopClientResponded); !ok || reason != ReasonClientResponded {
		t.Fatalf("expected client responded stop, got %s %v", reason, ok)
	}

	p.FollowUpStopped = true
	if reason, ok := p.StopConditionMet(StopManual); !ok || reason != ReasonManualStop {
		t.Fatalf("expected manual stop, got %s %v", reason, ok)
	}
}

func TestExecutionRecordHelpers(t *testing.T) {
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	next := created.Add(72 * time.Hour)
	rec := ExecutionRecord{
		ID:              uuid.New(),
		Status:          ExecutionActive,
		CreatedAt:       created,
		NextExecutionAt: &next,
	}

	if got := rec.LastActionAt(); !got.Equal(created) {
		t.Fatalf("expected creation time as last action, got %s", got)
	}
	if rec.Due(created) {
		t.Fatal("record must not be due before next_execution_at")
	}
	if !rec.Due(next) {
		t.Fatal("record must be due at next_execution_at")
	}

	claim := next.Add(time.Minute)
	rec.ClaimedUntil = &claim
	if rec.Due(next) {
		t.Fatal("claimed record must not be due")
	}
	if !rec.Due(claim.Add(time.Second)) {
		t.Fatal("record with expired claim must be due")
	}

	rec.Log = append(rec.Log, LogEntry{Kind: LogStep, ExecutedAt: next})
	if got := rec.LastActionAt(); !got.Equal(next) {
		t.Fatalf("expected last log entry time, got %s", got)
	}
	if rec.Escalated() {
		t.Fatal("expected no escalation yet")
	}
	rec.Log = append(rec.Log, LogEntry{Kind: LogEscalation, ExecutedAt: next})
	if !rec.Escalated() {
		t.Fatal("expected escalation to be detected")
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	err := &ValidationError{Problems: []string{"steps is required"}}
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ValidationError to unwrap to ErrValidation")
	}
	if err.Error() != "invalid sequence definition: steps is required" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestValueRangeContains(t *testing.T) {
	lo, hi := 1000.0, 5000.0
	r := ValueRange{Min: &lo, Max: &hi}

	if r.Contains(999) || r.Contains(5001) {
		t.Fatal("expected out-of-range values to be rejected")
	}
	if !r.Contains(1000) || !r.Contains(5000) {
		t.Fatal("expected bounds to be inclusive")
	}
	if !(ValueRange{}).Contains(-1) {
		t.Fatal("expected open range to contain everything")
	}
}
