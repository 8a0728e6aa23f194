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

// GroupStatisticsRepository implements repository.GroupStatisticsRepository.
type GroupStatisticsRepository struct {
	db *sqlx.DB
}

// NewGroupStatisticsRepository builds the repository.
func NewGroupStatisticsRepository(db *sqlx.DB) *GroupStatisticsRepository {
	return &GroupStatisticsRepository{db: db}
}

// Get retrieves statistics.
func (r *GroupStatisticsRepository) Get(ctx context.Context, groupID uuid.UUID) (*domain.GroupCallStats, error) {
	row := r.db.QueryRowxContext(ctx, `SELECT group_id, total_calls, succeeded_calls, failed_calls, updated_at
		FROM group_call_statistics WHERE group_id = $1`, groupID)

	var stats domain.GroupCallStats
	if err := row.StructScan(&stats); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("group stats: get: %w", err)
	}
	return &stats, nil
}

// ApplyDelta applies counter deltas atomically, creating the row on first use.
func (r *GroupStatisticsRepository) ApplyDelta(ctx context.Context, groupID uuid.UUID, delta repository.StatsDelta) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_call_statistics AS s (group_id, total_calls, succeeded_calls, failed_calls, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (group_id) DO UPDATE SET
			total_calls = s.total_calls + EXCLUDED.total_calls,
			succeeded_calls = s.succeeded_calls + EXCLUDED.succeeded_calls,
			failed_calls = s.failed_calls + EXCLUDED.failed_calls,
			updated_at = NOW()`,
		groupID,
		delta.TotalDelta,
		delta.SucceededDelta,
		delta.FailedDelta,
	)
	if err != nil {
		return fmt.Errorf("group stats: apply delta: %w", err)
	}
	return nil
}
