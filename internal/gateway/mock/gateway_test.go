package mock

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/outbound-batch-dialer/internal/config"
	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/gateway"
)

func TestMockGatewayEchoesBinding(t *testing.T) {
	g := NewGateway(config.GatewayConfig{MockSuccessRate: 1, RequestTimeout: 4 * time.Millisecond})
	agent := domain.Agent{ID: uuid.New()}
	contact := domain.Contact{ID: uuid.New(), PhoneNumber: "+1 (555) 010-0200"}

	outcome, err := g.Bind(gateway.Binding{GroupID: uuid.New()}).PlaceCall(context.Background(), agent, contact)
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected success with rate 1, got %+v", outcome)
	}
	var payload map[string]string
	if err := json.Unmarshal(outcome.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["phone"] != "15550100200" || payload["agent_id"] != agent.ID.String() {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestMockGatewayHonoursCancellation(t *testing.T) {
	g := NewGateway(config.GatewayConfig{RequestTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Bind(gateway.Binding{}).PlaceCall(ctx, domain.Agent{}, domain.Contact{})
	if err == nil {
		t.Fatal("expected cancelled context to abort the call")
	}
}
