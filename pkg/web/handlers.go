// Package web provides the HTTP handlers of the workflow, enrollment and
// deliverability API.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/enrollment"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/registry"
	"github.com/dukex/mailflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService *services.Workflow
	enrollment      *enrollment.Dispatcher
	gate            *deliverability.Gate
	signer          *compliance.Signer
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	enrollment *enrollment.Dispatcher,
	gate *deliverability.Gate,
	signer *compliance.Signer,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		enrollment:      enrollment,
		gate:            gate,
		signer:          signer,
		validator:       validator,
		registry:        registry,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Mailflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Mailflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// SaveWorkflow validates and stores a definition. A body without an id
// creates a new workflow.
func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	created := workflow.ID == ""

	saved, err := h.workflowService.Save(c.Context(), &workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	if created {
		return c.Status(fiber.StatusCreated).JSON(saved)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

// DeactivateWorkflow stops new enrollments. Running executions are
// cancelled lazily on their next step.
func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) GetWorkflowStats(c fiber.Ctx) error {
	id := c.Params("id")

	stats, err := h.workflowService.Stats(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(StatsResponse{WorkflowID: id, Executions: stats})
}

func (h *APIHandlers) EnrollContact(c fiber.Ctx) error {
	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID, err := h.enrollment.EnrollContact(c.Context(), c.Params("id"), req.ContactID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(EnrollResponse{ExecutionID: executionID})
}

// BulkEnroll enrolls every listed contact, reporting per-contact failures
// in the result instead of failing the request.
func (h *APIHandlers) BulkEnroll(c fiber.Ctx) error {
	var req BulkEnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.enrollment.BulkEnroll(c.Context(), c.Params("id"), req.ContactIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) RecordDeliverabilityEvent(c fiber.Ctx) error {
	var req DeliverabilityEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := req.Event()

	err := h.gate.Record(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(event)
}

// GetDeliverabilityHealth reports the tenant's health over the last days
// (default 30), checking subject for spam trigger words when given.
func (h *APIHandlers) GetDeliverabilityHealth(c fiber.Ctx) error {
	tenantID := c.Query("tenant")
	if tenantID == "" {
		return badRequest(c, "tenant is required")
	}

	window := DefaultHealthWindow

	if daysStr := c.Query("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days < 1 || days > 365 {
			return badRequest(c, "days must be between 1 and 365")
		}

		window = time.Duration(days) * 24 * time.Hour
	}

	report, err := h.gate.HealthScore(c.Context(), tenantID, time.Now().UTC().Add(-window), c.Query("subject"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

// Unsubscribe serves the one-click link from every sent email. The token
// must be the HMAC of the tenant and address.
func (h *APIHandlers) Unsubscribe(c fiber.Ctx) error {
	var req UnsubscribeRequest
	if err := c.Bind().Query(&req); err != nil {
		return badRequest(c, "Invalid query parameters")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.signer.Verify(req.Tenant, req.Email, req.Token)
	if err != nil {
		return handleServiceError(c, err)
	}

	err = h.gate.Record(c.Context(), &models.DeliverabilityEvent{
		TenantID: req.Tenant,
		Email:    req.Email,
		Type:     models.EventUnsubscribe,
		Reason:   "one-click unsubscribe",
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "unsubscribed",
		"message": "You will no longer receive these emails",
	})
}
