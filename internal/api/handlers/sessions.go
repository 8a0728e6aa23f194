package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/dialer"
	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/service/common"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

type createSessionRequest struct {
	ClientID string `json:"client_id"`
	GroupID  string `json:"group_id"`
	AgentID  string `json:"agent_id"`
}

type selectAgentRequest struct {
	AgentID string `json:"agent_id"`
}

type listSessionsResponse struct {
	Sessions []domain.SessionSnapshot `json:"sessions"`
}

type historyEntryResponse struct {
	Sequence    int       `json:"sequence"`
	ContactID   uuid.UUID `json:"contact_id"`
	ContactName string    `json:"contact_name"`
	PhoneNumber string    `json:"phone_number"`
	AgentID     uuid.UUID `json:"agent_id"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Payload     any       `json:"response_payload,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

type historyResponse struct {
	SessionID uuid.UUID              `json:"session_id"`
	Results   []historyEntryResponse `json:"results"`
	NextPage  string                 `json:"next_page_token,omitempty"`
}

func (h *HandlerSet) createSession(ctx *fiber.Ctx) error {
	var req createSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	clientID, err := parseUUID(req.ClientID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid client id")
	}
	groupID, err := parseUUID(req.GroupID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid group id")
	}
	var agentID uuid.UUID
	if req.AgentID != "" {
		if agentID, err = parseUUID(req.AgentID); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid agent id")
		}
	}

	snap, err := h.sessions.Create(ctx.Context(), dialer.CreateInput{
		ClientID: clientID,
		GroupID:  groupID,
		AgentID:  agentID,
	})
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusCreated).JSON(snap)
}

func (h *HandlerSet) listSessions(ctx *fiber.Ctx) error {
	return ctx.Status(http.StatusOK).JSON(listSessionsResponse{Sessions: h.sessions.List()})
}

func (h *HandlerSet) getSession(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	snap, err := h.sessions.Get(id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(snap)
}

func (h *HandlerSet) closeSession(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	if err := h.sessions.Close(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) selectAgent(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	var req selectAgentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	agentID, err := parseUUID(req.AgentID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid agent id")
	}
	snap, err := h.sessions.SelectAgent(ctx.Context(), id, agentID)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(snap)
}

func (h *HandlerSet) startSession(ctx *fiber.Ctx) error {
	return h.control(ctx, h.sessions.Start)
}

func (h *HandlerSet) pauseSession(ctx *fiber.Ctx) error {
	return h.control(ctx, h.sessions.Pause)
}

func (h *HandlerSet) resumeSession(ctx *fiber.Ctx) error {
	return h.control(ctx, h.sessions.Resume)
}

func (h *HandlerSet) skipContact(ctx *fiber.Ctx) error {
	return h.control(ctx, h.sessions.Skip)
}

func (h *HandlerSet) resetSession(ctx *fiber.Ctx) error {
	return h.control(ctx, h.sessions.Reset)
}

func (h *HandlerSet) control(ctx *fiber.Ctx, op func(context.Context, uuid.UUID) (domain.SessionSnapshot, error)) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	snap, err := op(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(snap)
}

func (h *HandlerSet) sessionHistory(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", strconv.Itoa(defaultHistoryLimit)))
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	paging, err := common.DecodePageToken(ctx.Query("page_token", ""))
	if err != nil {
		return translateError(err)
	}

	records, next, err := h.results.ListBySession(ctx.Context(), id, limit, paging)
	if err != nil {
		return translateError(err)
	}

	resp := historyResponse{SessionID: id, Results: make([]historyEntryResponse, 0, len(records))}
	for _, r := range records {
		entry := historyEntryResponse{
			Sequence:    r.Sequence,
			ContactID:   r.ContactID,
			ContactName: r.ContactName,
			PhoneNumber: r.PhoneNumber,
			AgentID:     r.AgentID,
			Success:     r.Success,
			Error:       r.Error,
			AttemptedAt: r.AttemptedAt,
		}
		if len(r.Payload) > 0 {
			entry.Payload = rawJSON(r.Payload)
		}
		resp.Results = append(resp.Results, entry)
	}
	resp.NextPage = common.EncodePageToken(next)

	return ctx.Status(http.StatusOK).JSON(resp)
}
