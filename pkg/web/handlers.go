package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/registry"
	"github.com/dukex/relay/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	webhookTokenHeader = "X-Webhook-Token"
)

type APIHandlers struct {
	scenarios  *services.Scenario
	executions *services.Execution
	dispatcher *services.Dispatcher
	validator  *validator.Validate
	registry   *registry.Registry
}

// NewAPIHandlers wires the handlers. With a nil dispatcher every execution
// runs inside its request.
func NewAPIHandlers(
	scenarios *services.Scenario,
	executions *services.Execution,
	dispatcher *services.Dispatcher,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		scenarios:  scenarios,
		executions: executions,
		dispatcher: dispatcher,
		validator:  validator,
		registry:   registry,
	}
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	s := router.Group("/scenarios")
	s.Get("/:id", h.GetScenario)
	s.Put("/:id", h.SaveScenario)
	s.Post("/:id/activate", h.ActivateScenario)
	s.Post("/:id/pause", h.PauseScenario)
	s.Post("/:id/executions", h.TriggerExecution)
	s.Get("/:id/executions", h.ListScenarioExecutions)
	s.Get("/:id/performance", h.GetPerformance)

	router.Post("/webhooks/:scenarioId/:nodeId", h.Webhook)

	e := router.Group("/executions")
	e.Get("/active", h.ListActiveExecutions)
	e.Get("/:id", h.GetExecution)
	e.Post("/:id/resume", h.ResumeExecution)
	e.Post("/:id/cancel", h.CancelExecution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.scenarios.HealthCheck(c.Context())
	executors := h.registry.Types()

	status := "unhealthy"
	message := "Relay API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk && len(executors) > 0 {
		status = "healthy"
		message = "Relay API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"executors":  executors,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetScenario(c fiber.Ctx) error {
	def, err := h.scenarios.GetDefinition(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) SaveScenario(c fiber.Ctx) error {
	var req SaveScenarioRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if req.Scenario != nil {
		if req.Scenario.ID == "" {
			req.Scenario.ID = c.Params("id")
		}

		if req.Scenario.Status == "" {
			req.Scenario.Status = models.ScenarioStatusDraft
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Scenario.ID != c.Params("id") {
		return badRequest(c, "Scenario ID does not match the path")
	}

	saved, err := h.scenarios.Save(c.Context(), &services.Definition{Scenario: req.Scenario, Nodes: req.Nodes})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(saved)
}

func (h *APIHandlers) ActivateScenario(c fiber.Ctx) error {
	scenario, err := h.scenarios.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(scenario)
}

func (h *APIHandlers) PauseScenario(c fiber.Ctx) error {
	scenario, err := h.scenarios.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(scenario)
}

func (h *APIHandlers) TriggerExecution(c fiber.Ctx) error {
	var req TriggerExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format: "+err.Error())
		}
	}

	return h.start(c, req.Wait, func() (*models.Execution, error) {
		return h.executions.Trigger(c.Context(), services.TriggerRequest{
			ScenarioID: c.Params("id"),
			Type:       models.TriggerTypeManual,
			Data:       req.Data,
			Metadata:   req.Metadata,
		})
	})
}

// Webhook accepts the token in the X-Webhook-Token header or the token query
// parameter. The JSON body becomes the trigger data.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	payload := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&payload); err != nil {
			return badRequest(c, "Invalid JSON format: "+err.Error())
		}
	}

	token := c.Get(webhookTokenHeader)
	if token == "" {
		token = c.Query("token")
	}

	headers := map[string]string{}
	if contentType := c.Get(fiber.HeaderContentType); contentType != "" {
		headers[fiber.HeaderContentType] = contentType
	}

	if agent := c.Get(fiber.HeaderUserAgent); agent != "" {
		headers[fiber.HeaderUserAgent] = agent
	}

	return h.start(c, false, func() (*models.Execution, error) {
		return h.executions.TriggerWebhook(c.Context(), services.WebhookRequest{
			ScenarioID: c.Params("scenarioId"),
			NodeID:     c.Params("nodeId"),
			Token:      token,
			Payload:    payload,
			Headers:    headers,
		})
	})
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	var req ResumeExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format: "+err.Error())
		}
	}

	return h.start(c, req.Wait, func() (*models.Execution, error) {
		return h.executions.Resume(c.Context(), req.toService(c.Params("id")))
	})
}

// start records an execution through create and then either dispatches it to
// the workers (202) or runs it in the request (200).
func (h *APIHandlers) start(c fiber.Ctx, wait bool, create func() (*models.Execution, error)) error {
	execution, err := create()
	if err != nil {
		return handleServiceError(c, err)
	}

	if wait || h.dispatcher == nil {
		finished, err := h.executions.Run(c.Context(), execution.ID)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(finished)
	}

	if err := h.dispatcher.Dispatch(c.Context(), execution); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executions.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	if err := h.executions.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) ListActiveExecutions(c fiber.Ctx) error {
	executions, err := h.executions.ListActive(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ExecutionResponse{Executions: executions, TotalCount: len(executions)})
}

func (h *APIHandlers) ListScenarioExecutions(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	executions, err := h.executions.ListByScenario(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ExecutionResponse{Executions: executions, TotalCount: len(executions)})
}

func (h *APIHandlers) GetPerformance(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit: "+err.Error())
	}

	performance, err := h.executions.Performance(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(performance)
}

func parseLimit(c fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}

	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit, nil
	}

	return limit, nil
}
