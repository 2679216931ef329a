package services

import (
	"fmt"
	"log"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/config"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/utils"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Airtable     string            `json:"airtable"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

// HealthCheck performs a comprehensive health check of the service
func HealthCheck(cfg *config.Config, db *gorm.DB) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Status = "unhealthy"
		result.Database = "error"
		result.Details["database_error"] = err.Error()
		result.ErrorMessage = fmt.Sprintf("Database connection error: %v", err)
		log.Printf("Health check failed - database connection: %v", err)
	} else {
		if err := sqlDB.Ping(); err != nil {
			result.Status = "unhealthy"
			result.Database = "unreachable"
			result.Details["database_ping_error"] = err.Error()
			result.ErrorMessage = fmt.Sprintf("Database ping failed: %v", err)
			log.Printf("Health check failed - database ping: %v", err)
		} else {
			result.Database = "ok"
			result.Details["database_type"] = cfg.DBType
			result.Details["database_name"] = cfg.DBDatabase
		}
	}

	// Check Airtable API reachability
	if err := utils.PingAirtable(cfg.AirtableAPIURL); err != nil {
		result.Status = "unhealthy"
		result.Airtable = "unreachable"
		result.Details["airtable_error"] = err.Error()
		if result.ErrorMessage == "" {
			result.ErrorMessage = fmt.Sprintf("Airtable ping failed: %v", err)
		} else {
			result.ErrorMessage += fmt.Sprintf("; Airtable ping failed: %v", err)
		}
		log.Printf("Health check failed - airtable ping: %v", err)
	} else {
		result.Airtable = "ok"
		result.Details["airtable_url"] = cfg.AirtableAPIURL
	}

	if result.Status == "healthy" {
		log.Println("Health check passed - all systems operational")
	}

	return result
}
