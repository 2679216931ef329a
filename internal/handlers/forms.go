package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/services"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/types"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/utils"
)

// FormHandler serves the form management endpoints.
type FormHandler struct {
	Forms *services.FormService
	Sync  *services.SyncService
}

// updateQuestionsRequest carries a question-set replacement. Version
// tolerates both a JSON number and a numeric string on the wire.
type updateQuestionsRequest struct {
	Version   types.FlexUint64         `json:"version"`
	Questions []services.QuestionInput `json:"questions"`
}

// CreateForm creates a form bound to an Airtable table
// @Summary Create a form
// @Tags forms
// @Accept json
// @Produce json
// @Router /api/forms [post]
func (h *FormHandler) CreateForm(c *fiber.Ctx) error {
	var input services.CreateFormInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "Invalid request body", fiber.StatusBadRequest, "parse")
	}

	form, err := h.Forms.CreateForm(c.Context(), input)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, form, fiber.StatusCreated)
}

// GetForm returns a form with its ordered question set
// @Summary Get a form
// @Tags forms
// @Produce json
// @Router /api/forms/{id} [get]
func (h *FormHandler) GetForm(c *fiber.Ctx) error {
	form, err := h.Forms.GetForm(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, form, fiber.StatusOK)
}

// UpdateQuestions replaces a form's question set
// @Summary Replace a form's questions
// @Tags forms
// @Accept json
// @Produce json
// @Router /api/forms/{id}/questions [put]
func (h *FormHandler) UpdateQuestions(c *fiber.Ctx) error {
	var req updateQuestionsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "Invalid request body", fiber.StatusBadRequest, "parse")
	}

	form, err := h.Forms.UpdateQuestions(c.Context(), c.Params("id"), req.Version.Uint64(), req.Questions)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.MutationSuccessResponse(c, form.Version, int64(len(form.Questions)))
}

// Publish opens a form for submissions
// @Summary Publish a form
// @Tags forms
// @Produce json
// @Router /api/forms/{id}/publish [post]
func (h *FormHandler) Publish(c *fiber.Ctx) error {
	form, err := h.Forms.Publish(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, form, fiber.StatusOK)
}

// Retire closes a form for submissions
// @Summary Retire a form
// @Tags forms
// @Produce json
// @Router /api/forms/{id}/retire [post]
func (h *FormHandler) Retire(c *fiber.Ctx) error {
	form, err := h.Forms.Retire(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, form, fiber.StatusOK)
}

// Resync walks the form's whole Airtable table and mirrors every record
// @Summary Resync a form's records from Airtable
// @Tags forms
// @Produce json
// @Router /api/forms/{id}/resync [post]
func (h *FormHandler) Resync(c *fiber.Ctx) error {
	result, err := h.Sync.SyncAllRecordsForForm(c.Context(), c.Params("id"))
	if err != nil {
		if result.SyncedCount == 0 && result.ErrorCount == 0 {
			return serviceError(c, err)
		}
		// Partial progress: report the counts with the failure.
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"status":      fiber.StatusBadGateway,
			"message":     err.Error(),
			"ok":          false,
			"syncedCount": result.SyncedCount,
			"errorCount":  result.ErrorCount,
			"type":        "sync",
		})
	}
	return utils.SuccessResponse(c, result, fiber.StatusOK)
}
