// SPDX-License-Identifier: Apache-2.0

// Package sequence holds the rules for follow-up sequence definitions:
// validation, message templating and YAML seed files.
package sequence

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/go-playground/validator/v10"
	"github.com/proposalai/followups/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Normalize returns a copy of def with steps ordered by step number, trimmed
// text fields and de-duplicated recipients.
func Normalize(def domain.SequenceDefinition) domain.SequenceDefinition {
	out := def
	out.Name = strings.TrimSpace(def.Name)
	out.Description = strings.TrimSpace(def.Description)
	out.Trigger.ClientType = strings.TrimSpace(def.Trigger.ClientType)

	if len(def.Steps) > 0 {
		out.Steps = make([]domain.SequenceStep, len(def.Steps))
		copy(out.Steps, def.Steps)
		sort.SliceStable(out.Steps, func(i, j int) bool {
			return out.Steps[i].StepNumber < out.Steps[j].StepNumber
		})
	} else {
		out.Steps = nil
	}

	seen := make(map[string]struct{}, len(def.Escalation.EscalateTo))
	recipients := make([]string, 0, len(def.Escalation.EscalateTo))
	for _, r := range def.Escalation.EscalateTo {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, r)
	}
	out.Escalation.EscalateTo = recipients
	out.Escalation.Message = strings.TrimSpace(def.Escalation.Message)

	return out
}

// Validate checks a normalized definition and returns a *domain.ValidationError
// listing every problem, or nil.
func Validate(def domain.SequenceDefinition) error {
	var problems []string

	if err := validate.Struct(def); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return &domain.ValidationError{Problems: []string{err.Error()}}
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	for i, step := range def.Steps {
		if step.StepNumber != i+1 {
			problems = append(problems, fmt.Sprintf(
				"steps must be numbered contiguously from 1 (position %d has step_number %d)",
				i+1, step.StepNumber,
			))
			break
		}
	}

	if r := def.Trigger.ProposalValueRange; r != nil && r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		problems = append(problems, "trigger_conditions.proposal_value_range min must not exceed max")
	}

	if def.Escalation.Enabled {
		if def.Escalation.AfterDays < 1 {
			problems = append(problems, "escalation.after_days must be at least 1 when escalation is enabled")
		}
		if len(def.Escalation.EscalateTo) == 0 {
			problems = append(problems, "escalation.escalate_to needs at least one recipient when escalation is enabled")
		}
		if def.Escalation.Message == "" {
			problems = append(problems, "escalation.message is required when escalation is enabled")
		}
		for _, r := range def.Escalation.EscalateTo {
			if err := checkmail.ValidateFormat(r); err != nil {
				problems = append(problems, fmt.Sprintf("escalation.escalate_to %q is not a valid email address", r))
			}
		}
	}

	if len(problems) > 0 {
		return &domain.ValidationError{Problems: problems}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must have at least " + fe.Param() + " item(s)"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "gte":
		return field + " must be at least " + fe.Param()
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return field + " is invalid"
	}
}
