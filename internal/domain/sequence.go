// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "DRAFT"
	ProposalSent     ProposalStatus = "SENT"
	ProposalViewed   ProposalStatus = "VIEWED"
	ProposalAccepted ProposalStatus = "ACCEPTED"
	ProposalRejected ProposalStatus = "REJECTED"
)

type StopCondition string

const (
	StopClientResponded  StopCondition = "CLIENT_RESPONDED"
	StopProposalAccepted StopCondition = "PROPOSAL_ACCEPTED"
	StopProposalRejected StopCondition = "PROPOSAL_REJECTED"
	StopManual           StopCondition = "MANUAL_STOP"
)

// ValueRange bounds the proposal value a sequence applies to. Either end may be open.
type ValueRange struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

func (r ValueRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

type TriggerConditions struct {
	DaysAfterSent      int              `json:"days_after_sent" validate:"gte=0"`
	ProposalStatuses   []ProposalStatus `json:"proposal_statuses" validate:"dive,oneof=SENT VIEWED"`
	ProposalValueRange *ValueRange      `json:"proposal_value_range,omitempty"`
	ClientType         string           `json:"client_type,omitempty"`
}

type MessageTemplate struct {
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

type SequenceStep struct {
	StepNumber     int             `json:"step_number" validate:"gte=1"`
	DelayDays      int             `json:"delay_days" validate:"gte=0"`
	Message        MessageTemplate `json:"message_template"`
	StopConditions []StopCondition `json:"stop_conditions" validate:"dive,oneof=CLIENT_RESPONDED PROPOSAL_ACCEPTED PROPOSAL_REJECTED MANUAL_STOP"`
}

type Escalation struct {
	Enabled    bool     `json:"enabled"`
	AfterDays  int      `json:"after_days" validate:"gte=0"`
	EscalateTo []string `json:"escalate_to"`
	Message    string   `json:"message"`
}

// SequenceDefinition is an organization-owned template of timed follow-up steps.
// UsageCount and SuccessRate are maintained by the engine only.
type SequenceDefinition struct {
	ID             uuid.UUID         `json:"id"`
	OrganizationID uuid.UUID         `json:"organization_id" validate:"required"`
	OwnerUserID    uuid.UUID         `json:"owner_user_id"`
	Name           string            `json:"name" validate:"required,max=200"`
	Description    string            `json:"description,omitempty"`
	Trigger        TriggerConditions `json:"trigger_conditions"`
	Steps          []SequenceStep    `json:"steps" validate:"required,min=1,dive"`
	Escalation     Escalation        `json:"escalation"`
	IsActive       bool              `json:"is_active"`
	IsDefault      bool              `json:"is_default"`
	UsageCount     int               `json:"usage_count"`
	SuccessRate    float64           `json:"success_rate"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Step returns the 1-indexed step n.
func (s SequenceDefinition) Step(n int) (SequenceStep, bool) {
	if n < 1 || n > len(s.Steps) {
		return SequenceStep{}, false
	}
	return s.Steps[n-1], true
}

func (s SequenceDefinition) LastStep() int {
	return len(s.Steps)
}
