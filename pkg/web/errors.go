package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/sleng75/slimail/pkg/automation"
	"github.com/sleng75/slimail/pkg/models"
	"github.com/sleng75/slimail/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine errors to problem+json responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsEnrollmentNotFound(err):
		return notFound(c, "enrollment not found")

	case errors.Is(err, models.ErrInvalidTransition):
		return conflict(c, err.Error())

	case errors.Is(err, automation.ErrNotEligible):
		return conflict(c, err.Error())

	case isValidationError(err):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		models.ErrNoRootStep,
		models.ErrRootStepNotFound,
		models.ErrStepCycle,
		models.ErrMissingBranch,
		models.ErrUnexpectedBranch,
		models.ErrBranchTargetMissing,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	return false
}
