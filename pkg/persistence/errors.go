// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrActionNotFound indicates no action exists for the given identifier and type.
	ErrActionNotFound = errors.New("action not found")

	// ErrStepNotFound indicates a step was not found by id or name.
	ErrStepNotFound = errors.New("action step not found")

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrResourceNotFound indicates the referenced resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrInvalidIdentifier indicates an identifier that cannot be used as a key.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// StoreError wraps persistence failures with the operation and entity involved.
type StoreError struct {
	Op     string // Operation being performed (e.g., "CreateAction", "AppendLog")
	Entity string // "action", "step", "user", "resource"
	ID     string // Identifier if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates any referenced entity was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrActionNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrResourceNotFound)
}

// IsActionNotFound checks if an error indicates an action was not found.
func IsActionNotFound(err error) bool {
	return errors.Is(err, ErrActionNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}
