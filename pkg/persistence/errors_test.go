package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		actionErr := persistence.NewStoreError("FindActionByCorrelationID", "action", "A1", persistence.ErrActionNotFound)
		stepErr := persistence.NewStoreError("FindStepByName", "step", "processing-schema", persistence.ErrStepNotFound)

		assert.True(t, persistence.IsActionNotFound(actionErr))
		assert.False(t, persistence.IsStepNotFound(actionErr))
		assert.True(t, persistence.IsStepNotFound(stepErr))

		// Test error unwrapping
		assert.True(t, errors.Is(actionErr, persistence.ErrActionNotFound))
		assert.True(t, errors.Is(stepErr, persistence.ErrStepNotFound))
	})

	t.Run("any missing reference is not found", func(t *testing.T) {
		for _, sentinel := range []error{
			persistence.ErrActionNotFound,
			persistence.ErrStepNotFound,
			persistence.ErrUserNotFound,
			persistence.ErrResourceNotFound,
		} {
			assert.True(t, persistence.IsNotFound(persistence.NewStoreError("Op", "entity", "id", sentinel)))
		}

		assert.False(t, persistence.IsNotFound(errors.New("connection refused")))
		assert.False(t, persistence.IsNotFound(persistence.ErrInvalidIdentifier))
	})

	t.Run("error messages are descriptive", func(t *testing.T) {
		withID := persistence.NewStoreError("CreateAction", "user", "U1", persistence.ErrUserNotFound)
		assert.Equal(t, "CreateAction operation failed for user U1: user not found", withID.Error())

		withoutID := persistence.NewStoreError("ListStaleActions", "action", "", errors.New("timeout"))
		assert.Equal(t, "ListStaleActions operation failed for action: timeout", withoutID.Error())
	})
}
