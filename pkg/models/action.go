// Package models defines the core domain models for tracked asynchronous actions
package models

import (
	"encoding/json"
	"time"
)

// ActionType identifies the kind of user action being tracked.
type ActionType string

const (
	ActionTypeDBSchemaImport ActionType = "DBSchemaImport"
)

// StepStatus represents the lifecycle state of an action step.
type StepStatus string

const (
	StepStatusWaiting StepStatus = "Waiting" // Created, nothing picked it up yet
	StepStatusRunning StepStatus = "Running" // Picked up by a consumer
	StepStatusSuccess StepStatus = "Success"
	StepStatusFailed  StepStatus = "Failed"
)

// NonTerminalStepStatuses lists the statuses a step may still move away from.
var NonTerminalStepStatuses = []StepStatus{StepStatusWaiting, StepStatusRunning}

// IsTerminal reports whether no further transition is allowed from s.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSuccess || s == StepStatusFailed
}

// IsValid reports whether s is one of the known statuses.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusWaiting, StepStatusRunning, StepStatusSuccess, StepStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces Waiting -> Running -> {Success, Failed}.
// Waiting may jump straight to a terminal status.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	switch s {
	case StepStatusWaiting:
		return next == StepStatusRunning || next.IsTerminal()
	case StepStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// TransitionSources returns, in lifecycle order, the statuses a step may move
// to next from.
func TransitionSources(next StepStatus) []StepStatus {
	var sources []StepStatus

	for _, status := range NonTerminalStepStatuses {
		if status.CanTransitionTo(next) {
			sources = append(sources, status)
		}
	}

	return sources
}

// LogLevel is the severity of an action log line.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "Debug"
	LogLevelInfo    LogLevel = "Info"
	LogLevelWarning LogLevel = "Warning"
	LogLevelError   LogLevel = "Error"
)

// IsValid reports whether l is one of the known levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// Action is one tracked asynchronous operation. ID is the internal identifier,
// ActionID is the correlation identifier carried on the message bus.
type Action struct {
	ID         string          `json:"id"`
	ActionID   string          `json:"action_id"             validate:"required"`
	Type       ActionType      `json:"type"                  validate:"required"`
	Metadata   json.RawMessage `json:"metadata"`
	UserID     string          `json:"user_id"               validate:"required"`
	ResourceID *string         `json:"resource_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Steps      []*ActionStep   `json:"steps,omitempty"`
}

// ActionStep is one named phase of an action. Names are unique per action.
type ActionStep struct {
	ID          string           `json:"id"`
	ActionID    string           `json:"action_id"`
	Name        string           `json:"name"                   validate:"required"`
	Status      StepStatus       `json:"status"                 validate:"required"`
	Logs        []*ActionLogLine `json:"logs,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ActionLogLine is an append-only log entry attached to a step.
type ActionLogLine struct {
	ID        string         `json:"id"`
	StepID    string         `json:"step_id"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// StepTemplate describes a step created together with its action.
type StepTemplate struct {
	Name   string     `json:"name"   validate:"required"`
	Status StepStatus `json:"status" validate:"required"`
}

// NewAction is the input to create an action and its initial step set.
type NewAction struct {
	Type         ActionType     `validate:"required"`
	Metadata     Metadata       `validate:"required"`
	UserID       string         `validate:"required"`
	ResourceID   string         `validate:"required"`
	InitialSteps []StepTemplate `validate:"required,min=1,dive"`
}

// StepByName returns the step with the given name, or nil.
func (a *Action) StepByName(name string) *ActionStep {
	for _, step := range a.Steps {
		if step.Name == name {
			return step
		}
	}

	return nil
}

// User is the owner of an action. Managed elsewhere; referenced only.
type User struct {
	ID        string `json:"id"         validate:"required"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// Resource is the target an action operates on. Referenced only.
type Resource struct {
	ID   string `json:"id"   validate:"required"`
	Name string `json:"name"`
}
