// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"errors"
	"strings"
)

var ErrValidation = errors.New("invalid sequence definition")
var ErrNoSequenceFound = errors.New("no sequence found")
var ErrAlreadyActive = errors.New("follow-up already active for proposal")
var ErrTriggerConditionsNotMet = errors.New("trigger conditions not met")
var ErrClaimLost = errors.New("claim lost")
var ErrStoreUnavailable = errors.New("store unavailable")
var ErrDispatchTimeout = errors.New("dispatch timeout")
var ErrNotFound = errors.New("not found")
var ErrInvalidTransition = errors.New("invalid status transition")
var ErrExecutionBusy = errors.New("execution is being processed")
var ErrInvalidAPIKeyName = errors.New("invalid api key name")

// ValidationError lists every problem found in a sequence definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
