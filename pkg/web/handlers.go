// Package web provides HTTP handlers and REST API endpoints for tracked actions.
package web

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/services"
	"github.com/dukex/actiontrack/pkg/useraction"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	actionService *services.Action
	schemaImport  *useraction.DBSchemaImport
	validator     *validator.Validate
	logger        *slog.Logger
}

func NewAPIHandlers(
	actionService *services.Action,
	schemaImport *useraction.DBSchemaImport,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		actionService: actionService,
		schemaImport:  schemaImport,
		validator:     validator,
		logger:        logger.With("module", "api"),
	}
}

// CreateDBSchemaImport accepts a schema upload and dispatches it for processing.
func (h *APIHandlers) CreateDBSchemaImport(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "A schema file is required in the 'file' field")
	}

	req := CreateDBSchemaImportRequest{
		ResourceID: c.Params("resourceId"),
		UserID:     c.Get(UserIDHeader),
		FileName:   fileHeader.Filename,
		Size:       fileHeader.Size,
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	file, err := fileHeader.Open()
	if err != nil {
		return badRequest(c, "Unable to read the uploaded file")
	}

	defer func() {
		err := file.Close()
		if err != nil {
			h.logger.ErrorContext(c.Context(), "Failed to close uploaded file", "error", err)
		}
	}()

	content, err := io.ReadAll(io.LimitReader(file, MaxSchemaSize+1))
	if err != nil {
		return badRequest(c, "Unable to read the uploaded file")
	}

	if len(content) > MaxSchemaSize {
		return badRequest(c, "Schema file is too large")
	}

	user, err := h.actionService.User(c.Context(), req.UserID)
	if err != nil {
		return handleServiceError(c, err)
	}

	action, err := h.schemaImport.StartProcessing(
		c.Context(),
		string(content),
		req.FileName,
		useraction.CreateUserActionArgs{ResourceID: req.ResourceID},
		user,
	)
	if err != nil {
		if errors.Is(err, useraction.ErrDispatchFailed) && action != nil {
			return dispatchFailed(c, action.ActionID)
		}

		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformActionResponse(action))
}

// GetDBSchemaImport returns a schema import action with its steps and logs.
func (h *APIHandlers) GetDBSchemaImport(c fiber.Ctx) error {
	actionID := c.Params("actionId")
	if actionID == "" {
		return badRequest(c, "Action ID is required")
	}

	action, err := h.actionService.FindByCorrelationID(c.Context(), actionID, models.ActionTypeDBSchemaImport)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformActionResponse(action))
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.actionService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "actiontrack API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "actiontrack API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
