// SPDX-License-Identifier: Apache-2.0

package sequence

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/domain"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Sequences []seedSequence `yaml:"sequences"`
}

type seedSequence struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Default     bool           `yaml:"default"`
	Inactive    bool           `yaml:"inactive"`
	Trigger     seedTrigger    `yaml:"trigger"`
	Steps       []seedStep     `yaml:"steps"`
	Escalation  seedEscalation `yaml:"escalation"`
}

type seedTrigger struct {
	DaysAfterSent    int                `yaml:"days_after_sent"`
	ProposalStatuses []string           `yaml:"proposal_statuses"`
	ValueRange       *domain.ValueRange `yaml:"value_range"`
	ClientType       string             `yaml:"client_type"`
}

type seedStep struct {
	DelayDays      int      `yaml:"delay_days"`
	Subject        string   `yaml:"subject"`
	Body           string   `yaml:"body"`
	StopConditions []string `yaml:"stop_conditions"`
}

type seedEscalation struct {
	Enabled    bool     `yaml:"enabled"`
	AfterDays  int      `yaml:"after_days"`
	EscalateTo []string `yaml:"escalate_to"`
	Message    string   `yaml:"message"`
}

// LoadDefinitions decodes a YAML seed file into sequence definitions owned by
// orgID. Steps are numbered by position. Every definition is normalized and
// validated; the first invalid one aborts the load.
func LoadDefinitions(r io.Reader, orgID, ownerID uuid.UUID) ([]domain.SequenceDefinition, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode sequences yaml: %w", err)
	}

	out := make([]domain.SequenceDefinition, 0, len(file.Sequences))
	for i, s := range file.Sequences {
		def := domain.SequenceDefinition{
			OrganizationID: orgID,
			OwnerUserID:    ownerID,
			Name:           s.Name,
			Description:    s.Description,
			IsDefault:      s.Default,
			IsActive:       !s.Inactive,
			Trigger: domain.TriggerConditions{
				DaysAfterSent:      s.Trigger.DaysAfterSent,
				ProposalValueRange: s.Trigger.ValueRange,
				ClientType:         s.Trigger.ClientType,
			},
			Escalation: domain.Escalation{
				Enabled:    s.Escalation.Enabled,
				AfterDays:  s.Escalation.AfterDays,
				EscalateTo: s.Escalation.EscalateTo,
				Message:    s.Escalation.Message,
			},
		}
		for _, st := range s.Trigger.ProposalStatuses {
			def.Trigger.ProposalStatuses = append(def.Trigger.ProposalStatuses, domain.ProposalStatus(st))
		}
		for n, st := range s.Steps {
			step := domain.SequenceStep{
				StepNumber: n + 1,
				DelayDays:  st.DelayDays,
				Message:    domain.MessageTemplate{Subject: st.Subject, Body: st.Body},
			}
			for _, c := range st.StopConditions {
				step.StopConditions = append(step.StopConditions, domain.StopCondition(c))
			}
			def.Steps = append(def.Steps, step)
		}

		def = Normalize(def)
		if err := Validate(def); err != nil {
			return nil, fmt.Errorf("sequence %d (%q): %w", i+1, s.Name, err)
		}
		out = append(out, def)
	}

	return out, nil
}
