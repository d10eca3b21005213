// Package persistence provides the durable store for actions, steps and log lines.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
)

// ActionStore is the single source of truth for action state. Every call is
// individually atomic; nothing links two calls transactionally.
type ActionStore interface {
	// CreateAction persists the action and its full initial step set in one transaction.
	CreateAction(ctx context.Context, action models.NewAction) (*models.Action, error)
	// FindActionByCorrelationID looks an action up by its bus identifier, scoped to a type.
	FindActionByCorrelationID(ctx context.Context, actionID string, actionType models.ActionType) (*models.Action, error)
	FindActionByID(ctx context.Context, id string) (*models.Action, error)
	// ActionSteps returns the ordered steps of an action, each with its ordered logs.
	ActionSteps(ctx context.Context, id string) ([]*models.ActionStep, error)
	FindStepByName(ctx context.Context, id string, stepName string) (*models.ActionStep, error)
	FindStepByID(ctx context.Context, stepID string) (*models.ActionStep, error)
	// AppendLog stores a log line. The stored timestamp never goes backwards within a step.
	AppendLog(ctx context.Context, stepID string, line models.ActionLogLine) (*models.ActionLogLine, error)
	// UpdateStepStatus moves the step to `to` only if its current status is in `from`.
	// It reports whether the update happened.
	UpdateStepStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error)
	// ListStaleActions returns actions holding a non-terminal step created before olderThan.
	ListStaleActions(ctx context.Context, olderThan time.Time, limit int) ([]*models.Action, error)

	LoadUser(ctx context.Context, userID string) (*models.User, error)
	LoadResource(ctx context.Context, resourceID string) (*models.Resource, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
