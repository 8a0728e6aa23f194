package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/outbound-batch-dialer/internal/dialer"
	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/repository"
	"github.com/acme/outbound-batch-dialer/pkg/logger"
)

// SessionService controls live dial sessions.
type SessionService interface {
	Create(ctx context.Context, input dialer.CreateInput) (domain.SessionSnapshot, error)
	Get(id uuid.UUID) (domain.SessionSnapshot, error)
	List() []domain.SessionSnapshot
	SelectAgent(ctx context.Context, id, agentID uuid.UUID) (domain.SessionSnapshot, error)
	Start(ctx context.Context, id uuid.UUID) (domain.SessionSnapshot, error)
	Pause(ctx context.Context, id uuid.UUID) (domain.SessionSnapshot, error)
	Resume(ctx context.Context, id uuid.UUID) (domain.SessionSnapshot, error)
	Skip(ctx context.Context, id uuid.UUID) (domain.SessionSnapshot, error)
	Reset(ctx context.Context, id uuid.UUID) (domain.SessionSnapshot, error)
	Close(ctx context.Context, id uuid.UUID) error
}

// HealthCheck probes one backing dependency.
type HealthCheck func(ctx context.Context) error

// Deps groups the collaborators of the HTTP handlers.
type Deps struct {
	Sessions     SessionService
	Results      repository.ResultStore
	Stats        repository.GroupStatisticsRepository
	Groups       repository.GroupRepository
	Agents       repository.AgentRepository
	HealthChecks map[string]HealthCheck
	Logger       *logger.Logger
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	sessions SessionService
	results  repository.ResultStore
	stats    repository.GroupStatisticsRepository
	groups   repository.GroupRepository
	agents   repository.AgentRepository
	checks   map[string]HealthCheck
	logger   *logger.Logger
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(deps Deps) *HandlerSet {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &HandlerSet{
		sessions: deps.Sessions,
		results:  deps.Results,
		stats:    deps.Stats,
		groups:   deps.Groups,
		agents:   deps.Agents,
		checks:   deps.HealthChecks,
		logger:   log,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	sessions := v1.Group("/sessions")
	sessions.Post("/", h.createSession)
	sessions.Get("/", h.listSessions)
	sessions.Get("/:id", h.getSession)
	sessions.Delete("/:id", h.closeSession)
	sessions.Put("/:id/agent", h.selectAgent)
	sessions.Post("/:id/start", h.startSession)
	sessions.Post("/:id/pause", h.pauseSession)
	sessions.Post("/:id/resume", h.resumeSession)
	sessions.Post("/:id/skip", h.skipContact)
	sessions.Post("/:id/reset", h.resetSession)
	sessions.Get("/:id/history", h.sessionHistory)

	groups := v1.Group("/groups")
	groups.Get("/:id/stats", h.groupStats)
	groups.Get("/:id/agents", h.groupAgents)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.checks {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
