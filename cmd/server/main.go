package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/airtable"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/config"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/database"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/handlers"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/middleware"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/repository"
	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/services"
)

// retrySweepInterval paces the background re-push of failed syncs.
const retrySweepInterval = time.Minute

// retrySweepLimit bounds one sweep so a backlog cannot starve live traffic.
const retrySweepLimit = 50

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories and Airtable access
	forms := repository.NewForms(db)
	responses := repository.NewResponses(db)
	credentials := repository.NewCredentials(db)
	factory := airtable.NewFactory(cfg.AirtableAPIURL, slogger)
	clients := services.NewCredentialClients(credentials, factory)

	// Services
	delays := services.DelayPolicy{
		BatchDelay: cfg.SyncBatchDelay,
		PageDelay:  cfg.SyncPageDelay,
		RetryDelay: cfg.SyncRetryDelay,
	}
	syncService := services.NewSyncService(forms, responses, clients, cfg.SyncBatchSize, delays, slogger)
	retryService := services.NewRetryService(responses, syncService, cfg.MaxSyncRetries, delays, slogger)
	formService := services.NewFormService(forms, clients, slogger)
	responseService := services.NewResponseService(forms, responses, syncService, clients, slogger)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: false,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("formsync")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Handlers
	formHandler := &handlers.FormHandler{Forms: formService, Sync: syncService}
	responseHandler := &handlers.ResponseHandler{Responses: responseService}
	webhookHandler := &handlers.WebhookHandler{Sync: syncService}
	healthHandler := &handlers.HealthHandler{Cfg: cfg, DB: db}

	app.Get("/health", healthHandler.Check)

	// API routes under /api
	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())

	// Form management routes
	api.Post("/forms", formHandler.CreateForm)
	api.Get("/forms/:id", formHandler.GetForm)
	api.Put("/forms/:id/questions", formHandler.UpdateQuestions)
	api.Post("/forms/:id/publish", formHandler.Publish)
	api.Post("/forms/:id/retire", formHandler.Retire)
	api.Post("/forms/:id/resync", formHandler.Resync)

	// Response routes
	api.Post("/forms/:id/responses", responseHandler.Submit)
	api.Get("/forms/:id/responses", responseHandler.List)
	api.Post("/forms/:id/visibility", responseHandler.Visibility)
	api.Put("/responses/:id", responseHandler.Edit)
	api.Delete("/responses/:id", responseHandler.Delete)

	// Webhook ingress, HMAC signed
	api.Post("/webhooks/airtable", middleware.VerifySignature(cfg.WebhookSecret), webhookHandler.Handle)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Background retry sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(retrySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := retryService.RetryFailedSyncs(sweepCtx, retrySweepLimit); err != nil {
					slogger.Error("retry sweep failed", "error", err)
				}
			}
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		stopSweep()
		_ = app.Shutdown()
	}()

	// Start server
	port := cfg.Port
	log.Printf("Starting server on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	stopSweep()
	log.Println("Server stopped")
}

// customErrorHandler converts unhandled errors into the standard envelope
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Check for version errors
	versionError := false
	if code == fiber.StatusConflict || (len(message) >= 9 && message[:9] == "E_VERSION") {
		versionError = true
		errorType = "version"
		code = fiber.StatusConflict
	}

	return c.Status(code).JSON(fiber.Map{
		"status":       code,
		"message":      message,
		"ok":           false,
		"versionError": versionError,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"url":          c.OriginalURL(),
		"type":         errorType,
	})
}
