package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
)

// Action is the step logger: it records log lines against steps and drives
// step status transitions.
type Action struct {
	store   persistence.ActionStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAction creates a new action service.
func NewAction(store persistence.ActionStore, logger *slog.Logger, m *metrics.Metrics) *Action {
	return &Action{
		store:   store,
		logger:  logger.With("module", "action_service"),
		metrics: m,
		now:     time.Now,
	}
}

// HealthCheck checks the health of the persistence layer.
func (a *Action) HealthCheck(ctx context.Context) (string, bool) {
	if a.store == nil {
		return "Persistence layer not initialized", false
	}

	err := a.store.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// AppendLog attaches a log line to a step. The timestamp is assigned here and
// the step status is never touched.
func (a *Action) AppendLog(ctx context.Context, stepID string, level models.LogLevel, message string) error {
	return a.AppendLogWithMeta(ctx, stepID, level, message, nil)
}

// AppendLogWithMeta is AppendLog with structured metadata stored next to the line.
func (a *Action) AppendLogWithMeta(ctx context.Context, stepID string, level models.LogLevel, message string, meta map[string]any) error {
	if !level.IsValid() {
		return &LogAppendError{StepID: stepID, Err: fmt.Errorf("%w: %q", ErrInvalidLevel, level)}
	}

	_, err := a.store.AppendLog(ctx, stepID, models.ActionLogLine{
		Level:     level,
		Message:   message,
		Meta:      meta,
		CreatedAt: a.now().UTC(),
	})
	if err != nil {
		return &LogAppendError{StepID: stepID, Err: err}
	}

	return nil
}

// Start moves a waiting step to Running. Starting a running step is a no-op.
func (a *Action) Start(ctx context.Context, step *models.ActionStep) error {
	updated, err := a.store.UpdateStepStatus(ctx, step.ID, models.TransitionSources(models.StepStatusRunning), models.StepStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to start step %s: %w", step.ID, err)
	}

	if updated {
		step.Status = models.StepStatusRunning

		return nil
	}

	current, err := a.store.FindStepByID(ctx, step.ID)
	if err != nil {
		return fmt.Errorf("failed to reload step %s: %w", step.ID, err)
	}

	step.Status = current.Status

	if current.Status == models.StepStatusRunning {
		return nil
	}

	return &InvalidTransitionError{StepID: step.ID, From: current.Status, To: models.StepStatusRunning}
}

// Complete moves a step to a terminal status. Completing with the status the
// step already holds is a no-op; any other terminal status is rejected and the
// stored status is kept.
func (a *Action) Complete(ctx context.Context, step *models.ActionStep, status models.StepStatus) error {
	if !status.IsTerminal() {
		a.metrics.IncStepCompletion(string(status), metrics.ResultError)

		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	updated, err := a.store.UpdateStepStatus(ctx, step.ID, models.TransitionSources(status), status)
	if err != nil {
		a.metrics.IncStepCompletion(string(status), metrics.ResultError)

		return fmt.Errorf("failed to complete step %s: %w", step.ID, err)
	}

	if updated {
		a.metrics.IncStepCompletion(string(status), metrics.ResultOK)
		a.logger.DebugContext(ctx, "Step completed", "step_id", step.ID, "status", status)

		step.Status = status

		return nil
	}

	current, err := a.store.FindStepByID(ctx, step.ID)
	if err != nil {
		a.metrics.IncStepCompletion(string(status), metrics.ResultError)

		return fmt.Errorf("failed to reload step %s: %w", step.ID, err)
	}

	step.Status = current.Status
	step.CompletedAt = current.CompletedAt

	if current.Status == status {
		a.metrics.IncStepCompletion(string(status), metrics.ResultNoop)

		return nil
	}

	a.metrics.IncStepCompletion(string(status), metrics.ResultError)

	return &InvalidTransitionError{StepID: step.ID, From: current.Status, To: status}
}

// FindByCorrelationID returns an action of the given type with its steps and logs.
func (a *Action) FindByCorrelationID(ctx context.Context, actionID string, actionType models.ActionType) (*models.Action, error) {
	action, err := a.store.FindActionByCorrelationID(ctx, actionID, actionType)
	if err != nil {
		return nil, err
	}

	steps, err := a.store.ActionSteps(ctx, action.ID)
	if err != nil {
		return nil, err
	}

	action.Steps = steps

	return action, nil
}

// User loads the user an action would be recorded for.
func (a *Action) User(ctx context.Context, userID string) (*models.User, error) {
	return a.store.LoadUser(ctx, userID)
}
