// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProposalSnapshot is the current proposal/client state as seen by the engine.
type ProposalSnapshot struct {
	ID              uuid.UUID
	OrganizationID  uuid.UUID
	Title           string
	Status          ProposalStatus
	Value           float64
	SentAt          *time.Time
	ClientName      string
	ClientEmail     string
	ClientCompany   string
	ClientType      string
	CompanyName     string
	ClientReplied   bool
	FollowUpStopped bool
}

// StopConditionMet reports whether cond holds for the proposal, and the reason to record.
func (p ProposalSnapshot) StopConditionMet(cond StopCondition) (StoppedReason, bool) {
	switch cond {
	case StopProposalAccepted:
		return ReasonProposalAccepted, p.Status == ProposalAccepted
	case StopProposalRejected:
		return ReasonProposalRejected, p.Status == ProposalRejected
	case StopClientResponded:
		return ReasonClientResponded, p.ClientReplied
	case StopManual:
		return ReasonManualStop, p.FollowUpStopped
	default:
		return "", false
	}
}
