package web

import (
	"errors"

	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/enrollment"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	return problem(c, fiber.StatusNotFound, kind, detail)
}

func conflict(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusConflict, "conflict", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps service, enrollment and persistence errors onto
// problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsContactNotFound(err):
		return notFound(c, "contact_not_found", "contact not found")

	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		return conflict(c, err.Error())

	case errors.Is(err, enrollment.ErrWorkflowInactive):
		return conflict(c, err.Error())

	case errors.Is(err, enrollment.ErrMissingRecipient),
		errors.Is(err, models.ErrNoEntryNode),
		errors.Is(err, deliverability.ErrInvalidEvent),
		services.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, compliance.ErrInvalidToken):
		return problem(c, fiber.StatusForbidden, "invalid_token", "unsubscribe link is invalid")

	default:
		return internalError(c, err)
	}
}
