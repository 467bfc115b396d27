// Package eventbus publishes best-effort engine telemetry events. A
// publish failure is logged and never propagated — the step that
// triggered it has already succeeded; the bus is an observability
// side-channel, not part of the engine's correctness contract.
package eventbus

import "context"

// Event kinds published by the engine.
const (
	EventEngineStepCompleted = "engine.step.completed"
	EventScoutEventDetected  = "scout.event.detected"
	EventScoutEmailSent      = "scout.email.sent"
)

// Event is one telemetry record. Payload is opaque to the bus — callers
// pass whatever JSON-serializable data is relevant to Kind.
type Event struct {
	Kind    string
	ScoutID string
	Payload map[string]any
}

// Bus publishes engine telemetry. Implementations must not block the
// caller on transient broker unavailability beyond the context deadline.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
