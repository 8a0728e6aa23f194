package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/repository"
)

type groupStatsResponse struct {
	GroupID        uuid.UUID  `json:"group_id"`
	TotalCalls     int64      `json:"total_calls"`
	SucceededCalls int64      `json:"succeeded_calls"`
	FailedCalls    int64      `json:"failed_calls"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

type groupAgentsResponse struct {
	GroupID uuid.UUID      `json:"group_id"`
	Agents  []domain.Agent `json:"agents"`
}

func (h *HandlerSet) groupStats(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid group id")
	}

	resp := groupStatsResponse{GroupID: id}
	stats, err := h.stats.Get(ctx.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// never dialed
	case err != nil:
		return translateError(err)
	default:
		resp.TotalCalls = stats.TotalCalls
		resp.SucceededCalls = stats.SucceededCalls
		resp.FailedCalls = stats.FailedCalls
		updated := stats.UpdatedAt
		resp.UpdatedAt = &updated
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func (h *HandlerSet) groupAgents(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid group id")
	}
	clientID, err := parseUUID(ctx.Query("client_id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid client id")
	}

	group, err := h.groups.GetGroup(ctx.Context(), clientID, id)
	if err != nil {
		return translateError(err)
	}
	agents, err := h.agents.ListByClient(ctx.Context(), group.ClientID)
	if err != nil {
		return translateError(err)
	}
	if agents == nil {
		agents = []domain.Agent{}
	}

	return ctx.Status(http.StatusOK).JSON(groupAgentsResponse{GroupID: id, Agents: agents})
}

// rawJSON passes stored gateway payloads through verbatim when they are JSON.
func rawJSON(b []byte) any {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}
