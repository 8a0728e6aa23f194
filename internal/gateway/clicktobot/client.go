package clicktobot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/acme/outbound-batch-dialer/internal/config"
	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/gateway"
)

const maxResponseBytes = 1 << 20

// Client places calls through the platform's click-to-bot proxy endpoint.
type Client struct {
	cfg        config.GatewayConfig
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient constructs a click-to-bot client.
func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + cfg.ProxyPath,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Bind returns a gateway issuing calls under the given session binding.
func (c *Client) Bind(b gateway.Binding) gateway.Gateway {
	return &boundClient{client: c, binding: b}
}

type boundClient struct {
	client  *Client
	binding gateway.Binding
}

func (b *boundClient) PlaceCall(ctx context.Context, agent domain.Agent, contact domain.Contact) (gateway.Outcome, error) {
	return b.client.placeCall(ctx, b.binding, agent, contact)
}

type dialRequest struct {
	APIKey  string      `json:"apiKey"`
	Payload dialPayload `json:"payload"`
}

type dialPayload struct {
	TransactionID string      `json:"transaction_id"`
	PhoneNumber   string      `json:"phone_num"`
	UniqueID      string      `json:"uniqueid"`
	CallerID      string      `json:"callerid"`
	ClientUUID    string      `json:"uuid"`
	ResFormat     int         `json:"resFormat"`
	CustomParam   customParam `json:"custom_param"`
}

type customParam struct {
	CampaignID  string `json:"campaign_id"`
	Region      string `json:"region"`
	Priority    string `json:"priority"`
	AgentID     string `json:"agent_id"`
	ContactName string `json:"contact_name"`
	GroupID     string `json:"group_id"`
}

type dialResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (c *Client) placeCall(ctx context.Context, b gateway.Binding, agent domain.Agent, contact domain.Contact) (gateway.Outcome, error) {
	tracer := otel.Tracer("dialer.gateway")
	ctx, span := tracer.Start(ctx, "clicktobot.place_call", trace.WithAttributes(
		attribute.String("group.id", b.GroupID.String()),
		attribute.String("contact.id", contact.ID.String()),
		attribute.String("agent.id", agent.ID.String()),
	))
	defer span.End()

	body, err := json.Marshal(c.buildRequest(b, agent, contact))
	if err != nil {
		return gateway.Outcome{}, fmt.Errorf("clicktobot: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gateway.Outcome{}, fmt.Errorf("clicktobot: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return gateway.Outcome{}, fmt.Errorf("clicktobot: POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		return gateway.Outcome{}, fmt.Errorf("clicktobot: read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var decoded dialResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if decodeErr == nil && decoded.Error != "" {
			msg = fmt.Sprintf("%s: %s", msg, decoded.Error)
		}
		return gateway.Outcome{Success: false, Payload: jsonOrNil(raw), Error: msg}, nil
	}
	if decodeErr != nil {
		span.RecordError(decodeErr)
		return gateway.Outcome{}, fmt.Errorf("clicktobot: decode response: %w", decodeErr)
	}

	outcome := gateway.Outcome{Success: decoded.Success, Payload: decoded.Data}
	if !decoded.Success {
		outcome.Payload = jsonOrNil(raw)
		outcome.Error = decoded.Error
		if outcome.Error == "" {
			outcome.Error = decoded.Message
		}
		if outcome.Error == "" {
			outcome.Error = "call rejected"
		}
	}
	return outcome, nil
}

func (c *Client) buildRequest(b gateway.Binding, agent domain.Agent, contact domain.Contact) dialRequest {
	groupID := b.GroupID.String()
	return dialRequest{
		APIKey: b.APIKey,
		Payload: dialPayload{
			TransactionID: c.cfg.TransactionID,
			PhoneNumber:   gateway.DigitsOnly(contact.PhoneNumber),
			UniqueID:      gateway.UniqueID(b.GroupID, contact.ID, c.now()),
			CallerID:      c.cfg.CallerID,
			ClientUUID:    b.ClientID.String(),
			ResFormat:     c.cfg.ResponseFormat,
			CustomParam: customParam{
				CampaignID:  "group_" + groupID,
				Region:      c.cfg.Region,
				Priority:    c.cfg.Priority,
				AgentID:     agent.ID.String(),
				ContactName: contact.Name,
				GroupID:     groupID,
			},
		},
	}
}

func jsonOrNil(raw []byte) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return json.RawMessage(raw)
}
