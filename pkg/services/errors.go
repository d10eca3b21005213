// Package services provides the step logger and the standardized errors of the service layer.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// ErrInvalidStatus is returned when a completion targets a non-terminal status.
	ErrInvalidStatus = errors.New("invalid step status")

	// ErrInvalidLevel is returned for an unknown log level.
	ErrInvalidLevel = errors.New("invalid log level")

	// ErrInvalidTransition is the sentinel matched by InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid step transition")
)

// InvalidTransitionError reports a completion that conflicts with the status
// already recorded for the step.
type InvalidTransitionError struct {
	StepID string
	From   models.StepStatus
	To     models.StepStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("step %s cannot move from %s to %s", e.StepID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// LogAppendError wraps a failure to store a log line.
type LogAppendError struct {
	StepID string
	Err    error
}

func (e *LogAppendError) Error() string {
	return fmt.Sprintf("failed to append log to step %s: %v", e.StepID, e.Err)
}

func (e *LogAppendError) Unwrap() error {
	return e.Err
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, models.ErrInvalidMetadata)
}

// IsInvalidTransition checks if an error is a conflicting completion.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound checks if an error means a referenced record does not exist.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err)
}
