package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/services"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/utils"
)

// ResponseHandler serves the response intake and listing endpoints.
type ResponseHandler struct {
	Responses *services.ResponseService
}

// answersRequest is the body of submit, edit, and visibility requests.
type answersRequest struct {
	Answers map[string]any `json:"answers"`
}

// submitResult is the intake reply. A submission is accepted even when the
// external push failed; synced tells the client which case it got.
type submitResult struct {
	ResponseID string `json:"responseId"`
	Status     string `json:"status"`
	Synced     bool   `json:"synced"`
	SyncError  string `json:"syncError,omitempty"`
}

func outcomeResult(outcome *services.SubmitOutcome) submitResult {
	return submitResult{
		ResponseID: outcome.Response.ID,
		Status:     string(outcome.Response.Status),
		Synced:     outcome.Synced,
		SyncError:  outcome.SyncError,
	}
}

// Submit accepts a new response for a published form
// @Summary Submit a response
// @Tags responses
// @Accept json
// @Produce json
// @Router /api/forms/{id}/responses [post]
func (h *ResponseHandler) Submit(c *fiber.Ctx) error {
	var req answersRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "Invalid request body", fiber.StatusBadRequest, "parse")
	}

	outcome, err := h.Responses.Submit(c.Context(), c.Params("id"), req.Answers)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, outcomeResult(outcome), fiber.StatusCreated)
}

// List pages through a form's responses
// @Summary List responses for a form
// @Tags responses
// @Produce json
// @Router /api/forms/{id}/responses [get]
func (h *ResponseHandler) List(c *fiber.Ctx) error {
	page, limit := parsePagination(c)
	responses, total, err := h.Responses.List(c.Context(), c.Params("id"), page, limit)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, fiber.Map{
		"responses": responses,
		"total":     total,
		"page":      page,
		"limit":     limit,
	}, fiber.StatusOK)
}

// Edit replaces the answers of an existing response
// @Summary Edit a response
// @Tags responses
// @Accept json
// @Produce json
// @Router /api/responses/{id} [put]
func (h *ResponseHandler) Edit(c *fiber.Ctx) error {
	var req answersRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "Invalid request body", fiber.StatusBadRequest, "parse")
	}

	outcome, err := h.Responses.Edit(c.Context(), c.Params("id"), req.Answers)
	if err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, outcomeResult(outcome), fiber.StatusOK)
}

// Delete soft-deletes a response and removes its Airtable record
// @Summary Delete a response
// @Tags responses
// @Produce json
// @Router /api/responses/{id} [delete]
func (h *ResponseHandler) Delete(c *fiber.Ctx) error {
	if err := h.Responses.Delete(c.Context(), c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return utils.SuccessResponse(c, fiber.Map{"ok": true}, fiber.StatusOK)
}

// Visibility evaluates conditional rules against partial answers
// @Summary Evaluate question visibility
// @Tags responses
// @Accept json
// @Produce json
// @Router /api/forms/{id}/visibility [post]
func (h *ResponseHandler) Visibility(c *fiber.Ctx) error {
	var req answersRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, "Invalid request body", fiber.StatusBadRequest, "parse")
	}

	visible, err := h.Responses.VisibleQuestions(c.Context(), c.Params("id"), req.Answers)
	if err != nil {
		return serviceError(c, err)
	}

	keys := make([]string, 0, len(visible))
	for _, q := range visible {
		keys = append(keys, q.Key)
	}
	return utils.SuccessResponse(c, fiber.Map{"visibleQuestions": keys}, fiber.StatusOK)
}
