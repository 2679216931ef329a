package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/services"
)

// WebhookHandler is the ingress for Airtable change notifications. Signature
// verification happens in middleware before the handler runs.
type WebhookHandler struct {
	Sync *services.SyncService
}

// Handle processes one Airtable webhook notification
// @Summary Receive an Airtable webhook
// @Tags webhooks
// @Accept json
// @Produce json
// @Router /api/webhooks/airtable [post]
func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	var event services.WebhookEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid webhook body",
		})
	}

	// Processing failures still answer 200 so Airtable does not redeliver
	// the notification forever; the retry sweep picks up the pieces.
	if err := h.Sync.ProcessWebhook(c.Context(), event); err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
