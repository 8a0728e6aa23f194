package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/domain"
)

// ResultStore persists dial results in Scylla, partitioned by session.
type ResultStore struct {
	session *gocql.Session
}

// NewResultStore creates a new result store.
func NewResultStore(session *gocql.Session) *ResultStore {
	return &ResultStore{session: session}
}

// AppendResult inserts one result. The (session_id, sequence) key makes
// redelivered events idempotent.
func (s *ResultStore) AppendResult(ctx context.Context, rec domain.CallResultRecord) error {
	if err := s.session.Query(`INSERT INTO dial_results_by_session (session_id, sequence, group_id, client_id, agent_id,
		contact_id, contact_name, phone_number, success, error, payload, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID.String(), rec.Sequence, rec.GroupID.String(), rec.ClientID.String(), rec.AgentID.String(),
		rec.ContactID.String(), rec.ContactName, rec.PhoneNumber, rec.Success, rec.Error, rec.Payload, rec.AttemptedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("result store: insert dial_results_by_session: %w", err)
	}

	if err := s.session.Query(`INSERT INTO dial_results_by_group (group_id, bucket, attempted_at, session_id, sequence, contact_id, success)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.GroupID.String(), bucketDate(rec.AttemptedAt), rec.AttemptedAt, rec.SessionID.String(), rec.Sequence,
		rec.ContactID.String(), rec.Success,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("result store: insert dial_results_by_group: %w", err)
	}
	return nil
}

// ListBySession lists a session's results in attempt order with pagination.
func (s *ResultStore) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int, pagingState []byte) ([]domain.CallResultRecord, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT sequence, group_id, client_id, agent_id, contact_id, contact_name, phone_number,
		success, error, payload, attempted_at
		FROM dial_results_by_session WHERE session_id = ?`, sessionID.String()).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	records := make([]domain.CallResultRecord, 0, limit)

	var (
		sequence    int
		groupIDStr  string
		clientIDStr string
		agentIDStr  string
		contactStr  string
		contactName string
		phone       string
		success     bool
		errText     string
		payload     []byte
		attemptedAt time.Time
	)

	for iter.Scan(&sequence, &groupIDStr, &clientIDStr, &agentIDStr, &contactStr, &contactName, &phone,
		&success, &errText, &payload, &attemptedAt) {
		contactID, err := uuid.Parse(contactStr)
		if err != nil {
			continue
		}
		records = append(records, domain.CallResultRecord{
			SessionID:   sessionID,
			GroupID:     parseOrNil(groupIDStr),
			ClientID:    parseOrNil(clientIDStr),
			AgentID:     parseOrNil(agentIDStr),
			Sequence:    sequence,
			ContactID:   contactID,
			ContactName: contactName,
			PhoneNumber: phone,
			Success:     success,
			Error:       errText,
			Payload:     append([]byte(nil), payload...),
			AttemptedAt: attemptedAt,
		})
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("result store: iter close: %w", err)
	}

	return records, nextState, nil
}

func parseOrNil(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func bucketDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
