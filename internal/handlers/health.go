package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/config"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/services"
)

// HealthHandler serves the liveness and readiness endpoint.
type HealthHandler struct {
	Cfg *config.Config
	DB  *gorm.DB
}

// Check reports database and Airtable reachability
// @Summary Health check
// @Tags health
// @Produce json
// @Router /health [get]
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Cfg, h.DB)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
