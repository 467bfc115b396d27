package storage

import (
	"context"
	"time"

	"github.com/navincodesalot/terascout/internal/scout"
)

// Store is the scout state store contract. Every method is scoped to a
// single scoutID; callers are responsible for holding that scout's lock
// (see ScoutLocks) across a whole read-modify-write cycle.
type Store interface {
	// PutScout inserts a new scout. Returns ErrAlreadyExists if scoutID is taken.
	PutScout(ctx context.Context, s *scout.Scout) error
	// GetScout returns ErrNotFound if no scout exists with this ID.
	GetScout(ctx context.Context, scoutID string) (*scout.Scout, error)
	// DeleteScout removes a scout and all of its snapshots, events, counters,
	// and step checkpoints. Idempotent: deleting a missing scout is not an error.
	DeleteScout(ctx context.Context, scoutID string) error
	// ListActiveScouts returns every scout whose expiresAt is after now, for
	// startup recovery.
	ListActiveScouts(ctx context.Context, now time.Time) ([]*scout.Scout, error)
	// RecordCycleOutcome updates the failure-tracking fields after one
	// engine cycle completes. failures is the new ConsecutiveFailures value
	// (0 on success, incremented by the caller on failure).
	RecordCycleOutcome(ctx context.Context, scoutID string, checkedAt time.Time, failures int) error

	// GetSnapshot returns (nil, nil) when no snapshot has been recorded yet —
	// the baseline case — rather than ErrNotFound.
	GetSnapshot(ctx context.Context, scoutID string) (*scout.Snapshot, error)
	PutSnapshot(ctx context.Context, scoutID string, snap *scout.Snapshot) error

	// RecordEvent inserts an event keyed by its content-derived EventID.
	// Returns (false, nil) without error when the EventID already exists —
	// the engine relies on this to make RecordEvent safely repeatable.
	RecordEvent(ctx context.Context, scoutID string, e *scout.Event) (inserted bool, err error)
	// MarkNotified flips Notified=true on an already-recorded event.
	MarkNotified(ctx context.Context, scoutID, eventID string) error
	ListEvents(ctx context.Context, scoutID string, limit int) ([]*scout.Event, error)

	// GetEmailCount returns the counter for scoutID on the given UTC date key,
	// or a zero count if none exists yet.
	GetEmailCount(ctx context.Context, scoutID, dateKey string) (int, error)
	// IncrementEmailCount atomically bumps the counter for dateKey and returns
	// the new total.
	IncrementEmailCount(ctx context.Context, scoutID, dateKey string) (int, error)

	// GetStepOutcome returns (value, true, nil) if name has already completed
	// for scoutID, so the engine can skip re-running it after a restart.
	GetStepOutcome(ctx context.Context, scoutID, name string) (value []byte, ok bool, err error)
	PutStepOutcome(ctx context.Context, scoutID, name string, value []byte) error
	// GetSleepDeadline returns the persisted wake time for a named sleep step.
	GetSleepDeadline(ctx context.Context, scoutID, name string) (deadline time.Time, ok bool, err error)
	PutSleepDeadline(ctx context.Context, scoutID, name string, deadline time.Time) error
	// ClearSteps removes every step checkpoint for scoutID — called once a
	// full engine cycle has ended so the next cycle starts fresh.
	ClearSteps(ctx context.Context, scoutID string) error

	HealthCheck(ctx context.Context) error
}
