package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/repository"
)

// AgentRepository reads voice agents from PostgreSQL.
type AgentRepository struct {
	db *sqlx.DB
}

// NewAgentRepository constructs the repository.
func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Get fetches one agent belonging to the client.
func (r *AgentRepository) Get(ctx context.Context, clientID, agentID uuid.UUID) (*domain.Agent, error) {
	var rec agentRecord
	row := r.db.QueryRowxContext(ctx, `SELECT id, client_id, name, description
		FROM agents WHERE id = $1 AND client_id = $2`, agentID, clientID)
	if err := row.StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("agent %s: %w", agentID, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("agents: get: %w", err)
	}
	agent := rec.toDomain()
	return &agent, nil
}

// ListByClient returns the client's selectable agents by name.
func (r *AgentRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Agent, error) {
	var recs []agentRecord
	if err := r.db.SelectContext(ctx, &recs, `SELECT id, client_id, name, description
		FROM agents WHERE client_id = $1 ORDER BY name ASC`, clientID); err != nil {
		return nil, fmt.Errorf("agents: list: %w", err)
	}
	agents := make([]domain.Agent, 0, len(recs))
	for _, rec := range recs {
		agents = append(agents, rec.toDomain())
	}
	return agents, nil
}

type agentRecord struct {
	ID          uuid.UUID      `db:"id"`
	ClientID    uuid.UUID      `db:"client_id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
}

func (r agentRecord) toDomain() domain.Agent {
	return domain.Agent{
		ID:          r.ID,
		ClientID:    r.ClientID,
		Name:        r.Name,
		Description: r.Description.String,
	}
}
