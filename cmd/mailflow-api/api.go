// Package main provides the mailflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/enrollment"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/registry"
	"github.com/dukex/mailflow/pkg/services"
	"github.com/dukex/mailflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	enrollment  *enrollment.Dispatcher
	gate        *deliverability.Gate
	signer      *compliance.Signer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	enrollment *enrollment.Dispatcher,
	gate *deliverability.Gate,
	signer *compliance.Signer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		enrollment:  enrollment,
		gate:        gate,
		signer:      signer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry, a.validate, a.logger)

	handlers := web.NewAPIHandlers(workflowService, a.enrollment, a.gate, a.signer, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Mailflow API")
	})

	w := app.Group("/workflows")
	w.Post("/", handlers.SaveWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", handlers.DeactivateWorkflow)
	w.Get("/:id/stats", handlers.GetWorkflowStats)
	w.Post("/:id/enroll", handlers.EnrollContact)
	w.Post("/:id/enroll/bulk", handlers.BulkEnroll)

	d := app.Group("/deliverability")
	d.Post("/events", handlers.RecordDeliverabilityEvent)
	d.Get("/health", handlers.GetDeliverabilityHealth)

	app.Get("/unsubscribe", handlers.Unsubscribe)
	app.Post("/unsubscribe", handlers.Unsubscribe)

	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start serves until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
