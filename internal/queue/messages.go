package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/domain"
)

// ResultMessage carries one dial outcome from a session to the result worker.
type ResultMessage struct {
	SessionID   uuid.UUID       `json:"session_id"`
	GroupID     uuid.UUID       `json:"group_id"`
	ClientID    uuid.UUID       `json:"client_id"`
	AgentID     uuid.UUID       `json:"agent_id"`
	Sequence    int             `json:"sequence"`
	ContactID   uuid.UUID       `json:"contact_id"`
	ContactName string          `json:"contact_name"`
	PhoneNumber string          `json:"phone_number"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	AttemptedAt time.Time       `json:"attempted_at"`
}

// Record converts the message into its persisted form.
func (m ResultMessage) Record() domain.CallResultRecord {
	return domain.CallResultRecord{
		SessionID:   m.SessionID,
		GroupID:     m.GroupID,
		ClientID:    m.ClientID,
		AgentID:     m.AgentID,
		Sequence:    m.Sequence,
		ContactID:   m.ContactID,
		ContactName: m.ContactName,
		PhoneNumber: m.PhoneNumber,
		Success:     m.Success,
		Error:       m.Error,
		Payload:     []byte(m.Payload),
		AttemptedAt: m.AttemptedAt,
	}
}
