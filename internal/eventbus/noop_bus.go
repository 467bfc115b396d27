package eventbus

import (
	"context"
	"log/slog"
)

// NoopBus logs events via slog instead of publishing them anywhere.
// Used in tests and any deployment without a configured Kafka broker.
type NoopBus struct {
	logger *slog.Logger
}

// NewNoopBus builds a NoopBus; a nil logger falls back to slog.Default().
func NewNoopBus(logger *slog.Logger) *NoopBus {
	if logger == nil {
		logger = slog.Default()
	}

	return &NoopBus{logger: logger}
}

// Publish logs e at debug level and always succeeds.
func (b *NoopBus) Publish(_ context.Context, e Event) error {
	b.logger.Debug("eventbus: event", "kind", e.Kind, "scout_id", e.ScoutID, "payload", e.Payload)
	return nil
}

// Close is a no-op.
func (b *NoopBus) Close() error { return nil }

var _ Bus = (*NoopBus)(nil)
