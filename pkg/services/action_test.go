package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/dukex/actiontrack/pkg/persistence/file"
	"github.com/dukex/actiontrack/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Action, *file.Persistence, *models.Action) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	require.NoError(t, testutil.SeedReferences(t.Context(), store))

	action, err := store.CreateAction(t.Context(), testutil.CreateSchemaImport())
	require.NoError(t, err)

	service := NewAction(store, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New())

	return service, store, action
}

func TestAction_HealthCheck(t *testing.T) {
	service, _, _ := newTestService(t)

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	service = NewAction(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	message, ok = service.HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}

func TestAction_AppendLog(t *testing.T) {
	service, store, action := newTestService(t)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	step := action.Steps[0]

	require.NoError(t, service.AppendLog(t.Context(), step.ID, models.LogLevelInfo, "parsing"))
	require.NoError(t, service.AppendLogWithMeta(t.Context(), step.ID, models.LogLevelDebug, "model found", map[string]any{"model": "User"}))

	steps, err := store.ActionSteps(t.Context(), action.ID)
	require.NoError(t, err)
	require.Len(t, steps[0].Logs, 2)

	assert.Equal(t, "parsing", steps[0].Logs[0].Message)
	assert.Equal(t, models.LogLevelInfo, steps[0].Logs[0].Level)
	assert.True(t, steps[0].Logs[0].CreatedAt.Equal(fixed))
	assert.Equal(t, "User", steps[0].Logs[1].Meta["model"])

	// Logging never changes the status.
	assert.Equal(t, models.StepStatusWaiting, steps[0].Status)
}

func TestAction_AppendLog_Errors(t *testing.T) {
	service, _, action := newTestService(t)

	err := service.AppendLog(t.Context(), "missing", models.LogLevelInfo, "x")

	var appendErr *LogAppendError
	require.ErrorAs(t, err, &appendErr)
	assert.Equal(t, "missing", appendErr.StepID)
	assert.True(t, persistence.IsStepNotFound(err))

	err = service.AppendLog(t.Context(), action.Steps[0].ID, models.LogLevel("Trace"), "x")
	require.ErrorAs(t, err, &appendErr)
	assert.ErrorIs(t, err, ErrInvalidLevel)
	assert.True(t, IsValidationError(err))
}

func TestAction_Complete(t *testing.T) {
	service, store, action := newTestService(t)

	step := action.Steps[0]

	require.NoError(t, service.Complete(t.Context(), step, models.StepStatusSuccess))
	assert.Equal(t, models.StepStatusSuccess, step.Status)

	// Same status again is a no-op.
	require.NoError(t, service.Complete(t.Context(), step, models.StepStatusSuccess))

	// A different terminal status is rejected and the first one stays.
	err := service.Complete(t.Context(), step, models.StepStatusFailed)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.StepStatusSuccess, transitionErr.From)
	assert.Equal(t, models.StepStatusFailed, transitionErr.To)

	stored, err := store.FindStepByID(t.Context(), step.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusSuccess, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestAction_Complete_InvalidStatus(t *testing.T) {
	service, store, action := newTestService(t)

	for _, status := range []models.StepStatus{models.StepStatusWaiting, models.StepStatusRunning, "Done"} {
		err := service.Complete(t.Context(), action.Steps[0], status)
		assert.ErrorIs(t, err, ErrInvalidStatus)
		assert.True(t, IsValidationError(err))
	}

	stored, err := store.FindStepByID(t.Context(), action.Steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusWaiting, stored.Status)
}

func TestAction_Complete_MissingStep(t *testing.T) {
	service, _, _ := newTestService(t)

	err := service.Complete(t.Context(), &models.ActionStep{ID: "missing"}, models.StepStatusFailed)
	assert.True(t, IsNotFound(err))
}

func TestAction_Start(t *testing.T) {
	service, _, action := newTestService(t)

	step := action.Steps[0]

	require.NoError(t, service.Start(t.Context(), step))
	assert.Equal(t, models.StepStatusRunning, step.Status)

	require.NoError(t, service.Start(t.Context(), step))

	require.NoError(t, service.Complete(t.Context(), step, models.StepStatusFailed))

	err := service.Start(t.Context(), step)
	assert.True(t, IsInvalidTransition(err))
	assert.Equal(t, models.StepStatusFailed, step.Status)
}

type sourceRecordingStore struct {
	persistence.ActionStore

	sources map[models.StepStatus][]models.StepStatus
}

func (s *sourceRecordingStore) UpdateStepStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error) {
	s.sources[to] = from

	return s.ActionStore.UpdateStepStatus(ctx, stepID, from, to)
}

func TestAction_GuardsFollowTransitionTable(t *testing.T) {
	_, store, action := newTestService(t)

	recording := &sourceRecordingStore{ActionStore: store, sources: map[models.StepStatus][]models.StepStatus{}}
	service := NewAction(recording, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)

	step := action.Steps[0]

	require.NoError(t, service.Start(t.Context(), step))
	require.NoError(t, service.Complete(t.Context(), step, models.StepStatusSuccess))

	assert.Equal(t, []models.StepStatus{models.StepStatusWaiting}, recording.sources[models.StepStatusRunning])
	assert.Equal(t, []models.StepStatus{models.StepStatusWaiting, models.StepStatusRunning}, recording.sources[models.StepStatusSuccess])

	for to, from := range recording.sources {
		for _, status := range from {
			assert.True(t, status.CanTransitionTo(to), "%s -> %s", status, to)
		}
	}
}

func TestAction_FindByCorrelationID(t *testing.T) {
	service, _, action := newTestService(t)

	require.NoError(t, service.AppendLog(t.Context(), action.Steps[0].ID, models.LogLevelInfo, "parsing"))

	found, err := service.FindByCorrelationID(t.Context(), action.ActionID, models.ActionTypeDBSchemaImport)
	require.NoError(t, err)
	require.Len(t, found.Steps, 1)
	require.Len(t, found.Steps[0].Logs, 1)

	_, err = service.FindByCorrelationID(t.Context(), "unknown", models.ActionTypeDBSchemaImport)
	assert.True(t, IsNotFound(err))
}

func TestAction_User(t *testing.T) {
	service, _, _ := newTestService(t)

	user, err := service.User(t.Context(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1", user.ID)

	_, err = service.User(t.Context(), "U2")
	assert.ErrorIs(t, err, persistence.ErrUserNotFound)
}
