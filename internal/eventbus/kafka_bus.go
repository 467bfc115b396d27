package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaBus publishes engine telemetry events to a single Kafka topic,
// keyed by scoutID so per-scout event ordering is preserved within a
// partition.
type KafkaBus struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaBus dials no connection eagerly — kafka-go's Writer connects
// lazily on first WriteMessages call, matching the teacher's
// connect-on-use style for its other external collaborators.
func NewKafkaBus(brokers []string, topic string, logger *slog.Logger) *KafkaBus {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger,
	}
}

// Publish writes e to the topic. Errors are logged and returned to the
// caller, which per the Bus contract must treat them as best-effort and
// never fail the originating step.
func (b *KafkaBus) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		b.logger.Warn("eventbus: payload marshal failed", "kind", e.Kind, "scout_id", e.ScoutID, "error", err)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(e.ScoutID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		b.logger.Warn("eventbus: publish failed", "kind", e.Kind, "scout_id", e.ScoutID, "error", err)
		return err
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (b *KafkaBus) Close() error {
	return b.writer.Close()
}

var _ Bus = (*KafkaBus)(nil)
