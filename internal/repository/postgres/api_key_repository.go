package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/outbound-batch-dialer/internal/repository"
)

// APIKeyRepository resolves the client's designated outbound key.
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository constructs the repository.
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// DefaultKey returns the non-revoked key flagged as default. A partial unique
// index on (client_id) WHERE is_default keeps the designation unambiguous.
func (r *APIKeyRepository) DefaultKey(ctx context.Context, clientID uuid.UUID) (string, error) {
	var key string
	err := r.db.GetContext(ctx, &key, `SELECT key
		FROM api_keys
		WHERE client_id = $1 AND is_default AND revoked_at IS NULL`, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no default api key designated for client %s: %w", clientID, repository.ErrNotFound)
		}
		return "", fmt.Errorf("api keys: default: %w", err)
	}
	return key, nil
}
