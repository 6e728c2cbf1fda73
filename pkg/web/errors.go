package web

import (
	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

// handleServiceError maps service and repository errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return problem(c, fiber.StatusBadRequest, "validation_error", err.Error())
	case services.IsUnauthorizedError(err):
		return problem(c, fiber.StatusUnauthorized, "unauthorized", err.Error())
	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())
	case persistence.IsScenarioNotFound(err):
		return problem(c, fiber.StatusNotFound, "scenario_not_found", "scenario not found")
	case persistence.IsNodeNotFound(err):
		return problem(c, fiber.StatusNotFound, "node_not_found", "node not found")
	case persistence.IsExecutionNotFound(err):
		return problem(c, fiber.StatusNotFound, "execution_not_found", "execution not found")
	case persistence.IsCheckpointNotFound(err):
		return problem(c, fiber.StatusNotFound, "checkpoint_not_found", "checkpoint not found")
	default:
		p := problems.NewStatusProblem(fiber.StatusInternalServerError).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
