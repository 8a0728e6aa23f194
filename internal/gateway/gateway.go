package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/domain"
)

// Outcome captures the result of one call placement request.
type Outcome struct {
	Success bool
	Payload json.RawMessage
	Error   string
}

// Gateway places a single outbound call. Ordinary failures are reported through
// Outcome.Success; a returned error means a transport fault.
type Gateway interface {
	PlaceCall(ctx context.Context, agent domain.Agent, contact domain.Contact) (Outcome, error)
}

// Binding carries the per-session identity a gateway call is issued under.
type Binding struct {
	ClientID uuid.UUID
	GroupID  uuid.UUID
	APIKey   string
}

// Factory produces gateways bound to a session.
type Factory interface {
	Bind(b Binding) Gateway
}

// Func adapts a function to Gateway.
type Func func(ctx context.Context, agent domain.Agent, contact domain.Contact) (Outcome, error)

// PlaceCall implements Gateway.
func (f Func) PlaceCall(ctx context.Context, agent domain.Agent, contact domain.Contact) (Outcome, error) {
	return f(ctx, agent, contact)
}

// UniqueID derives the transaction id for a call from group, contact and time.
func UniqueID(groupID, contactID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", groupID, contactID, at.UnixMilli())
}

// DigitsOnly strips everything but ASCII digits from a phone number.
func DigitsOnly(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
