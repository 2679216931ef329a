// Package handlers contains the fiber HTTP handlers for form management,
// response intake, and the Airtable webhook ingress.
package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/repository"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/services"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/utils"
)

// parsePagination extracts page and limit query parameters,
// falling back to the first page with the default limit.
func parsePagination(c *fiber.Ctx) (page, limit int) {
	page = 1
	limit = 20

	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page = v
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	return page, limit
}

// serviceError maps service and repository errors onto HTTP responses.
func serviceError(c *fiber.Ctx, err error) error {
	if ve, ok := services.IsValidation(err); ok {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"status":  fiber.StatusUnprocessableEntity,
			"message": "Validation failed",
			"ok":      false,
			"errors":  ve.Problems,
			"type":    "validation",
		})
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return utils.NotFoundResponse(c, "[404] Resource Not Found")
	case errors.Is(err, services.ErrVersionConflict):
		return utils.VersionErrorResponse(c)
	case errors.Is(err, services.ErrFormRetired),
		errors.Is(err, services.ErrFormNotSubmittable):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusConflict, "state")
	case errors.Is(err, repository.ErrDuplicate):
		return utils.ErrorResponse(c, err.Error(), fiber.StatusConflict, "duplicate")
	}
	return utils.ErrorResponse(c, err.Error(), fiber.StatusInternalServerError, "internal")
}
