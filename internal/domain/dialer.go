package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DialStatus enumerates lifecycle states of a batch dial session.
type DialStatus string

const (
	DialStatusIdle      DialStatus = "idle"
	DialStatusRunning   DialStatus = "running"
	DialStatusPaused    DialStatus = "paused"
	DialStatusCompleted DialStatus = "completed"
)

// Contact is a callable member of a group.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email,omitempty"`
}

// Agent is a configured voice agent a call is placed on behalf of.
type Agent struct {
	ID          uuid.UUID `json:"id"`
	ClientID    uuid.UUID `json:"client_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

// Group is a named collection of contacts owned by a client.
type Group struct {
	ID          uuid.UUID
	ClientID    uuid.UUID
	Name        string
	Description string
	Contacts    []Contact
	CreatedAt   time.Time
}

// CallResult records one attempted contact of a dial session.
type CallResult struct {
	Contact      Contact         `json:"contact"`
	Success      bool            `json:"success"`
	Payload      json.RawMessage `json:"response_payload,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AttemptedAt  time.Time       `json:"attempted_at"`
}

// SessionSnapshot is a point-in-time copy of a dial session.
type SessionSnapshot struct {
	ID        uuid.UUID    `json:"id"`
	ClientID  uuid.UUID    `json:"client_id"`
	GroupID   uuid.UUID    `json:"group_id"`
	Agent     *Agent       `json:"agent,omitempty"`
	Status    DialStatus   `json:"status"`
	Cursor    int          `json:"cursor"`
	Total     int          `json:"total"`
	Current   *Contact     `json:"current,omitempty"`
	InFlight  bool         `json:"in_flight"`
	Results   []CallResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// CallResultRecord is the persisted form of a call result.
type CallResultRecord struct {
	SessionID   uuid.UUID
	GroupID     uuid.UUID
	ClientID    uuid.UUID
	AgentID     uuid.UUID
	Sequence    int
	ContactID   uuid.UUID
	ContactName string
	PhoneNumber string
	Success     bool
	Error       string
	Payload     []byte
	AttemptedAt time.Time
}

// GroupCallStats aggregates dial outcomes per group.
type GroupCallStats struct {
	GroupID        uuid.UUID `db:"group_id"`
	TotalCalls     int64     `db:"total_calls"`
	SucceededCalls int64     `db:"succeeded_calls"`
	FailedCalls    int64     `db:"failed_calls"`
	UpdatedAt      time.Time `db:"updated_at"`
}
