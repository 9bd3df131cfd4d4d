package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic is where harvest audit events land unless overridden.
const DefaultTopic = "oai-edge.harvests"

// Kafka publishes audit events to a Kafka topic. Production is asynchronous;
// delivery failures are logged, never surfaced to the harvest path.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka connects a producer to the given brokers.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

func (k *Kafka) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.Tenant),
		Value: payload,
	}
	k.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Warn("audit event delivery failed",
				"topic", k.topic,
				"tenant", event.Tenant,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending events and releases the producer.
func (k *Kafka) Close(ctx context.Context) error {
	if err := k.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush audit producer: %w", err)
	}
	k.client.Close()
	return nil
}
