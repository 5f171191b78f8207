package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/auth"
	"github.com/spec-kit/lifecycle-service/internal/config"
	"github.com/spec-kit/lifecycle-service/internal/domain"
	"github.com/spec-kit/lifecycle-service/internal/observability"
	"github.com/spec-kit/lifecycle-service/internal/repository"
	"github.com/spec-kit/lifecycle-service/internal/ticketsource"
	"github.com/spec-kit/lifecycle-service/internal/worker"
	"github.com/spec-kit/lifecycle-service/pkg/util"
)

// Handlers serves the operator portal endpoints.
type Handlers struct {
	cfg     *config.Config
	tokens  *auth.TokenManager
	runner  *worker.BatchRunner
	source  ticketsource.Source
	runs    repository.RunRepository
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(
	cfg *config.Config,
	tokens *auth.TokenManager,
	runner *worker.BatchRunner,
	source ticketsource.Source,
	runs repository.RunRepository,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		cfg:     cfg,
		tokens:  tokens,
		runner:  runner,
		source:  source,
		runs:    runs,
		metrics: metrics,
		logger:  logger,
	}
}

// Health reports service liveness.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"name":    h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates the operator and issues an access token.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid login payload", nil)
	}
	if req.Username == "" || req.Password == "" {
		return util.NewValidationError("username and password are required", nil)
	}
	if h.cfg.Auth.OperatorPasswordHash == "" ||
		!auth.CheckPassword(h.cfg.Auth.OperatorPasswordHash, req.Password) {
		return util.NewUnauthorized("invalid credentials")
	}
	token, err := h.tokens.Issue(req.Username)
	if err != nil {
		return util.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"access_token": token, "token_type": "Bearer"})
}

// TriggerBatch runs the full pipeline and returns the batch report.
func (h *Handlers) TriggerBatch(c *fiber.Ctx) error {
	report, err := h.runner.RunBatch(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"tickets_fetched": report.TicketsFetched,
		"runs_executed":   report.RunsExecuted,
		"runs_succeeded":  report.RunsSucceeded,
		"runs_failed":     report.RunsFailed,
		"duration_ms":     report.Duration.Milliseconds(),
	})
}

// TriggerTicket runs the phase plan for one ticket by id.
func (h *Handlers) TriggerTicket(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	if ticketID == "" {
		return util.NewValidationError("ticket id is required", nil)
	}
	outcome, err := h.runner.RunOne(c.Context(), h.source, ticketID)
	if err != nil {
		return err
	}
	return c.JSON(outcomeResponse(outcome))
}

// ListRuns returns recent run history.
func (h *Handlers) ListRuns(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	outcomes, err := h.runs.ListRecent(c.Context(), limit)
	if err != nil {
		return err
	}
	payload := make([]fiber.Map, 0, len(outcomes))
	for _, outcome := range outcomes {
		payload = append(payload, outcomeResponse(outcome))
	}
	return c.JSON(fiber.Map{"runs": payload})
}

// Metrics returns the pipeline counter snapshot.
func (h *Handlers) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"counters": h.metrics.Snapshot()})
}

func outcomeResponse(outcome *domain.TerminationOutcome) fiber.Map {
	phases := make([]fiber.Map, 0, len(outcome.PhaseOrder))
	for _, name := range outcome.PhaseOrder {
		result, ok := outcome.PerPhase[name]
		if !ok {
			continue
		}
		phases = append(phases, fiber.Map{
			"phase":             string(name),
			"succeeded":         result.Succeeded,
			"skipped":           result.Skipped,
			"actions_completed": result.ActionsCompleted,
			"actions_failed":    result.ActionsFailed,
			"errors":            result.Errors,
			"warnings":          result.Warnings,
		})
	}
	return fiber.Map{
		"run_id":          outcome.RunID,
		"ticket_id":       outcome.TicketID,
		"employee":        outcome.EmployeeIdentity.Email(),
		"employee_state":  string(outcome.EmployeeIdentity.State),
		"manager":         outcome.ManagerIdentity.Email(),
		"overall_success": outcome.OverallSuccess,
		"started_at":      outcome.StartedAt,
		"duration_ms":     outcome.Duration.Milliseconds(),
		"phases":          phases,
	}
}
