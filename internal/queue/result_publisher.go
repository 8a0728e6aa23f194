package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/outbound-batch-dialer/internal/dialer"
	"github.com/acme/outbound-batch-dialer/internal/domain"
)

// ResultPublisher publishes dial results for asynchronous persistence.
type ResultPublisher struct {
	writer *kafka.Writer
}

// NewResultPublisher constructs a result publisher for the given topic.
func NewResultPublisher(k *Kafka, topic string) *ResultPublisher {
	return &ResultPublisher{writer: k.NewWriter(topic)}
}

// NewResultMessage builds the wire message for one session result.
func NewResultMessage(info dialer.SessionInfo, agent domain.Agent, sequence int, result domain.CallResult) ResultMessage {
	msg := ResultMessage{
		SessionID:   info.ID,
		GroupID:     info.GroupID,
		ClientID:    info.ClientID,
		AgentID:     agent.ID,
		Sequence:    sequence,
		ContactID:   result.Contact.ID,
		ContactName: result.Contact.Name,
		PhoneNumber: result.Contact.PhoneNumber,
		Success:     result.Success,
		Error:       result.ErrorMessage,
		AttemptedAt: result.AttemptedAt,
	}
	if json.Valid(result.Payload) {
		msg.Payload = result.Payload
	}
	return msg
}

// RecordResult implements dialer.Recorder.
func (p *ResultPublisher) RecordResult(ctx context.Context, info dialer.SessionInfo, agent domain.Agent, sequence int, result domain.CallResult) error {
	return p.Publish(ctx, NewResultMessage(info, agent, sequence, result))
}

// Publish emits a result message keyed by session.
func (p *ResultPublisher) Publish(ctx context.Context, msg ResultMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("result publisher: marshal message: %w", err)
	}
	record := kafka.Message{
		Key:   msg.SessionID[:],
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("result publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *ResultPublisher) Close() error {
	return p.writer.Close()
}
