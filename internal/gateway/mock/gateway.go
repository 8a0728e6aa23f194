package mock

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/acme/outbound-batch-dialer/internal/config"
	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/gateway"
)

// Gateway simulates call placement for local development.
type Gateway struct {
	successRate float64
	maxLatency  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGateway constructs a mock gateway.
func NewGateway(cfg config.GatewayConfig) *Gateway {
	rate := cfg.MockSuccessRate
	if rate <= 0 || rate > 1 {
		rate = 0.8
	}
	latency := cfg.RequestTimeout / 4
	if latency <= 0 {
		latency = time.Second
	}
	return &Gateway{
		successRate: rate,
		maxLatency:  latency,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Bind implements gateway.Factory; the binding is echoed back in the payload.
func (g *Gateway) Bind(b gateway.Binding) gateway.Gateway {
	return gateway.Func(func(ctx context.Context, agent domain.Agent, contact domain.Contact) (gateway.Outcome, error) {
		return g.placeCall(ctx, b, agent, contact)
	})
}

func (g *Gateway) placeCall(ctx context.Context, b gateway.Binding, agent domain.Agent, contact domain.Contact) (gateway.Outcome, error) {
	g.mu.Lock()
	latency := time.Duration(g.rng.Int63n(int64(g.maxLatency)) + 1)
	succeed := g.rng.Float64() <= g.successRate
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return gateway.Outcome{}, ctx.Err()
	case <-time.After(latency):
	}

	payload, _ := json.Marshal(map[string]string{
		"uniqueid": gateway.UniqueID(b.GroupID, contact.ID, time.Now()),
		"agent_id": agent.ID.String(),
		"phone":    gateway.DigitsOnly(contact.PhoneNumber),
	})

	if succeed {
		return gateway.Outcome{Success: true, Payload: payload}, nil
	}
	return gateway.Outcome{Success: false, Payload: payload, Error: "simulated failure"}, nil
}
