package queue

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/outbound-batch-dialer/internal/config"
)

// writeBatchTimeout bounds how long a synchronous publish waits for a batch
// to fill. Results are published one at a time from the dial loop.
const writeBatchTimeout = 10 * time.Millisecond

// Kafka builds readers and writers against the configured cluster.
type Kafka struct {
	cfg    config.KafkaConfig
	dialer *kafka.Dialer
}

// NewKafka initializes the Kafka helper.
func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	return &Kafka{
		cfg:    cfg,
		dialer: &kafka.Dialer{Timeout: 10 * time.Second, ClientID: cfg.ClientID, DualStack: true},
	}, nil
}

// NewWriter creates a synchronous writer for topic. Keys are hashed so every
// message of one session lands on the same partition, in order.
func (k *Kafka) NewWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(k.cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           writeBatchTimeout,
		AllowAutoTopicCreation: false,
	}
}

// NewReader creates a consumer-group reader for topic. Offsets are committed
// explicitly by the caller.
func (k *Kafka) NewReader(topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.cfg.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		Dialer:         k.dialer,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: k.cfg.CommitInterval,
		MinBytes:       1,
		MaxBytes:       10e6,
	})
}

// EnsureTopics creates missing topics through the cluster controller.
func (k *Kafka) EnsureTopics(ctx context.Context, topics []string, partitions int, replicationFactor int) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial: %w", err)
	}
	defer conn.Close()

	existing, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka: read partitions: %w", err)
	}
	missing := missingTopics(topics, existing)
	if len(missing) == 0 {
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: find controller: %w", err)
	}
	ctrl, err := k.dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: dial controller: %w", err)
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(missing))
	for _, topic := range missing {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replicationFactor,
		})
	}
	if err := ctrl.CreateTopics(configs...); err != nil {
		return fmt.Errorf("kafka: create topics %v: %w", missing, err)
	}
	return nil
}

func missingTopics(want []string, existing []kafka.Partition) []string {
	present := make(map[string]bool, len(existing))
	for _, p := range existing {
		present[p.Topic] = true
	}
	var missing []string
	for _, topic := range want {
		if topic != "" && !present[topic] {
			missing = append(missing, topic)
			present[topic] = true
		}
	}
	return missing
}
