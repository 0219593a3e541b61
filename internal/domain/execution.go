// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type ExecutionStatus string

const (
	ExecutionActive    ExecutionStatus = "ACTIVE"
	ExecutionPaused    ExecutionStatus = "PAUSED"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionStopped   ExecutionStatus = "STOPPED"
)

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionStopped
}

type StoppedReason string

const (
	ReasonClientResponded   StoppedReason = "CLIENT_RESPONDED"
	ReasonProposalAccepted  StoppedReason = "PROPOSAL_ACCEPTED"
	ReasonProposalRejected  StoppedReason = "PROPOSAL_REJECTED"
	ReasonManualStop        StoppedReason = "MANUAL_STOP"
	ReasonSequenceCompleted StoppedReason = "SEQUENCE_COMPLETED"
	ReasonProposalMissing   StoppedReason = "PROPOSAL_MISSING"
	ReasonSequenceMissing   StoppedReason = "SEQUENCE_MISSING"
)

// Successful reports whether a terminal reason counts toward a sequence's success rate.
func (r StoppedReason) Successful() bool {
	return r == ReasonProposalAccepted || r == ReasonClientResponded
}

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)

type LogEntryKind string

const (
	LogStep       LogEntryKind = "STEP"
	LogEscalation LogEntryKind = "ESCALATION"
)

type LogEntry struct {
	Kind           LogEntryKind   `json:"kind"`
	StepNumber     int            `json:"step_number"`
	ExecutedAt     time.Time      `json:"executed_at"`
	Dispatched     bool           `json:"dispatched"`
	MessageID      string         `json:"message_id,omitempty"`
	Recipient      string         `json:"recipient,omitempty"`
	Subject        string         `json:"subject,omitempty"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	Error          string         `json:"error,omitempty"`
}

// ExecutionRecord is one run of a sequence against one proposal. Proposal and
// sequence are referenced by id only.
type ExecutionRecord struct {
	ID              uuid.UUID       `json:"id"`
	ProposalID      uuid.UUID       `json:"proposal_id"`
	SequenceID      uuid.UUID       `json:"sequence_id"`
	OrganizationID  uuid.UUID       `json:"organization_id"`
	Status          ExecutionStatus `json:"status"`
	CurrentStep     int             `json:"current_step"`
	Log             []LogEntry      `json:"execution_log"`
	StoppedReason   StoppedReason   `json:"stopped_reason,omitempty"`
	NextExecutionAt *time.Time      `json:"next_execution_at"`
	ClaimedUntil    *time.Time      `json:"-"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

// LastActionAt is the time of the newest log entry, or creation time when the log is empty.
func (e ExecutionRecord) LastActionAt() time.Time {
	last := e.CreatedAt
	for _, entry := range e.Log {
		if entry.ExecutedAt.After(last) {
			last = entry.ExecutedAt
		}
	}
	return last
}

func (e ExecutionRecord) Escalated() bool {
	for _, entry := range e.Log {
		if entry.Kind == LogEscalation {
			return true
		}
	}
	return false
}

func (e ExecutionRecord) Claimed(now time.Time) bool {
	return e.ClaimedUntil != nil && e.ClaimedUntil.After(now)
}

func (e ExecutionRecord) Due(now time.Time) bool {
	return e.Status == ExecutionActive &&
		e.NextExecutionAt != nil &&
		!e.NextExecutionAt.After(now) &&
		!e.Claimed(now)
}

// StepResult is the full set of mutations produced by one step-executor pass.
// It is applied to the record as a single conditional update.
type StepResult struct {
	Status          ExecutionStatus
	CurrentStep     int
	StoppedReason   StoppedReason
	NextExecutionAt *time.Time
	Append          []LogEntry
	FinishedAt      *time.Time
}
