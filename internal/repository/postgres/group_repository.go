package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/repository"
)

// groupContactsQuery fixes the dialing order: insertion time, ties broken by id.
const groupContactsQuery = `SELECT id, name, phone_number, email
	FROM group_contacts
	WHERE group_id = $1
	ORDER BY created_at ASC, id ASC`

// GroupRepository reads contact groups from PostgreSQL.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// GetGroup loads a group and its contacts, oldest contact first.
func (r *GroupRepository) GetGroup(ctx context.Context, clientID, groupID uuid.UUID) (*domain.Group, error) {
	var group domain.Group

	err := readTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var rec groupRecord
		row := tx.QueryRowxContext(ctx, `SELECT id, client_id, name, description, created_at
			FROM contact_groups WHERE id = $1 AND client_id = $2`, groupID, clientID)
		if err := row.StructScan(&rec); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("group %s: %w", groupID, repository.ErrNotFound)
			}
			return fmt.Errorf("groups: get: %w", err)
		}
		group = rec.toDomain()

		rows, err := tx.QueryxContext(ctx, groupContactsQuery, groupID)
		if err != nil {
			return fmt.Errorf("groups: select contacts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c contactRecord
			if err := rows.StructScan(&c); err != nil {
				return fmt.Errorf("groups: scan contact: %w", err)
			}
			group.Contacts = append(group.Contacts, c.toDomain())
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("groups: rows err: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

type groupRecord struct {
	ID          uuid.UUID      `db:"id"`
	ClientID    uuid.UUID      `db:"client_id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r groupRecord) toDomain() domain.Group {
	return domain.Group{
		ID:          r.ID,
		ClientID:    r.ClientID,
		Name:        r.Name,
		Description: r.Description.String,
		CreatedAt:   r.CreatedAt,
	}
}

type contactRecord struct {
	ID          uuid.UUID      `db:"id"`
	Name        string         `db:"name"`
	PhoneNumber string         `db:"phone_number"`
	Email       sql.NullString `db:"email"`
}

func (r contactRecord) toDomain() domain.Contact {
	return domain.Contact{
		ID:          r.ID,
		Name:        r.Name,
		PhoneNumber: r.PhoneNumber,
		Email:       r.Email.String,
	}
}
