package web

import (
	"errors"

	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/dukex/actiontrack/pkg/services"
	"github.com/dukex/actiontrack/pkg/useraction"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), errors.Is(err, useraction.ErrInvalidArguments):
		return badRequest(c, err.Error())

	case errors.Is(err, persistence.ErrUserNotFound):
		return notFound(c, "user_not_found", "user not found")

	case errors.Is(err, persistence.ErrResourceNotFound):
		return notFound(c, "resource_not_found", "resource not found")

	case persistence.IsActionNotFound(err):
		return notFound(c, "action_not_found", "action not found")

	case persistence.IsStepNotFound(err):
		return notFound(c, "step_not_found", "action step not found")

	case services.IsInvalidTransition(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("invalid_transition").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		// Log unexpected errors but don't expose details
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}

// dispatchFailed reports an action that was stored but not published.
func dispatchFailed(c fiber.Ctx, actionID string) error {
	problem := problems.NewStatusProblem(502).
		WithInstance("/actions/" + actionID).
		WithType("dispatch_failed").
		WithDetail("action " + actionID + " was recorded but could not be dispatched")

	return c.Status(fiber.StatusBadGateway).JSON(problem)
}
