package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/domain"
	apperrors "github.com/acme/outbound-batch-dialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// GroupRepository is the contact source for dial sessions.
type GroupRepository interface {
	// GetGroup returns the group with its contacts in dialing order.
	GetGroup(ctx context.Context, clientID, groupID uuid.UUID) (*domain.Group, error)
}

// AgentRepository reads the client's agent catalog.
type AgentRepository interface {
	Get(ctx context.Context, clientID, agentID uuid.UUID) (*domain.Agent, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Agent, error)
}

// APIKeyStore resolves credentials used for outbound calling.
type APIKeyStore interface {
	// DefaultKey returns the key explicitly designated as the client's
	// default. It never falls back to an arbitrary stored key.
	DefaultKey(ctx context.Context, clientID uuid.UUID) (string, error)
}

// GroupStatisticsRepository keeps aggregate dial counters per group.
type GroupStatisticsRepository interface {
	Get(ctx context.Context, groupID uuid.UUID) (*domain.GroupCallStats, error)
	ApplyDelta(ctx context.Context, groupID uuid.UUID, delta StatsDelta) error
}

// ResultStore persists dial results for later review.
type ResultStore interface {
	AppendResult(ctx context.Context, record domain.CallResultRecord) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int, pagingState []byte) ([]domain.CallResultRecord, []byte, error)
}

// StatsDelta captures atomic counter increments.
type StatsDelta struct {
	TotalDelta     int64
	SucceededDelta int64
	FailedDelta    int64
}
