// Package web provides HTTP request and response types for the action tracking API.
package web

import (
	"time"

	"github.com/dukex/actiontrack/pkg/models"
)

// UserIDHeader carries the id of the calling user.
const UserIDHeader = "X-User-ID"

// MaxSchemaSize bounds an uploaded schema file.
const MaxSchemaSize = 4 << 20

// CreateDBSchemaImportRequest is assembled from the path, the caller header
// and the multipart upload.
type CreateDBSchemaImportRequest struct {
	ResourceID string `validate:"required,max=255"`
	UserID     string `validate:"required,max=255"`
	FileName   string `validate:"required,max=255"`
	Size       int64  `validate:"max=4194304"`
}

// ActionResponse is the public view of an action with its steps.
type ActionResponse struct {
	ID         string            `json:"id"`
	ActionID   string            `json:"actionId"`
	Type       models.ActionType `json:"type"`
	ResourceID *string           `json:"resourceId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	Steps      []StepResponse    `json:"steps"`
}

type StepResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      models.StepStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Logs        []LogResponse     `json:"logs"`
}

type LogResponse struct {
	Level     models.LogLevel `json:"level"`
	Message   string          `json:"message"`
	Meta      map[string]any  `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// TransformActionResponse drops the stored metadata, which holds the full
// schema text, and flattens steps and logs.
func TransformActionResponse(action *models.Action) ActionResponse {
	response := ActionResponse{
		ID:         action.ID,
		ActionID:   action.ActionID,
		Type:       action.Type,
		ResourceID: action.ResourceID,
		CreatedAt:  action.CreatedAt,
		Steps:      make([]StepResponse, 0, len(action.Steps)),
	}

	for _, step := range action.Steps {
		stepResponse := StepResponse{
			ID:          step.ID,
			Name:        step.Name,
			Status:      step.Status,
			CreatedAt:   step.CreatedAt,
			CompletedAt: step.CompletedAt,
			Logs:        make([]LogResponse, 0, len(step.Logs)),
		}

		for _, line := range step.Logs {
			stepResponse.Logs = append(stepResponse.Logs, LogResponse{
				Level:     line.Level,
				Message:   line.Message,
				Meta:      line.Meta,
				CreatedAt: line.CreatedAt,
			})
		}

		response.Steps = append(response.Steps, stepResponse)
	}

	return response
}
