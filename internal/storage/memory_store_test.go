package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/navincodesalot/terascout/internal/scout"
)

func TestMemoryStorePutGetScout(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sc := newTestScout("mem-1")
	require.NoError(t, store.PutScout(ctx, sc))

	got, err := store.GetScout(ctx, sc.ScoutID)
	require.NoError(t, err)
	require.Equal(t, sc.Query, got.Query)

	// Returned copy must not alias the stored scout.
	got.Query = "mutated"
	got2, err := store.GetScout(ctx, sc.ScoutID)
	require.NoError(t, err)
	require.Equal(t, sc.Query, got2.Query)
}

func TestMemoryStorePutScoutDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sc := newTestScout("mem-dup")
	require.NoError(t, store.PutScout(ctx, sc))
	require.ErrorIs(t, store.PutScout(ctx, sc), ErrAlreadyExists)
}

func TestMemoryStoreGetScoutNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetScout(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDeleteScoutRemovesRelatedState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sc := newTestScout("mem-del")
	require.NoError(t, store.PutScout(ctx, sc))
	require.NoError(t, store.PutSnapshot(ctx, sc.ScoutID, &scout.Snapshot{ContentHash: "x"}))

	require.NoError(t, store.DeleteScout(ctx, sc.ScoutID))

	_, err := store.GetScout(ctx, sc.ScoutID)
	require.ErrorIs(t, err, ErrNotFound)

	snap, err := store.GetSnapshot(ctx, sc.ScoutID)
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestMemoryStoreDeleteScoutIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.DeleteScout(context.Background(), "never-existed"))
}

func TestMemoryStoreListActiveScoutsExcludesExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	active := newTestScout("mem-active")
	require.NoError(t, store.PutScout(ctx, active))

	expired := newTestScout("mem-expired")
	expired.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, store.PutScout(ctx, expired))

	scouts, err := store.ListActiveScouts(ctx, now)
	require.NoError(t, err)
	require.Len(t, scouts, 1)
	require.Equal(t, active.ScoutID, scouts[0].ScoutID)
}

func TestMemoryStoreRecordCycleOutcome(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sc := newTestScout("mem-cycle")
	require.NoError(t, store.PutScout(ctx, sc))

	checkedAt := time.Now().UTC()
	require.NoError(t, store.RecordCycleOutcome(ctx, sc.ScoutID, checkedAt, 3))

	got, err := store.GetScout(ctx, sc.ScoutID)
	require.NoError(t, err)
	require.Equal(t, 3, got.ConsecutiveFailures)
	require.Equal(t, checkedAt, got.LastCheckedAt)

	require.ErrorIs(t, store.RecordCycleOutcome(ctx, "missing", checkedAt, 1), ErrNotFound)
}

func TestMemoryStoreSnapshotBaseline(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snap, err := store.GetSnapshot(ctx, "no-snapshot-yet")
	require.NoError(t, err)
	require.Nil(t, snap)

	require.NoError(t, store.PutSnapshot(ctx, "scout-x", &scout.Snapshot{ContentHash: "h1"}))

	got, err := store.GetSnapshot(ctx, "scout-x")
	require.NoError(t, err)
	require.Equal(t, "h1", got.ContentHash)
}

func TestMemoryStoreRecordEventIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	event := &scout.Event{EventID: "evt-1", TLDR: "something changed"}

	inserted, err := store.RecordEvent(ctx, "scout-1", event)
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = store.RecordEvent(ctx, "scout-1", event)
	require.NoError(t, err)
	require.False(t, inserted)

	events, err := store.ListEvents(ctx, "scout-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.False(t, events[0].Notified)

	require.NoError(t, store.MarkNotified(ctx, "scout-1", "evt-1"))

	events, err = store.ListEvents(ctx, "scout-1", 10)
	require.NoError(t, err)
	require.True(t, events[0].Notified)
}

func TestMemoryStoreListEventsOrderedNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	older := &scout.Event{EventID: "evt-older", DetectedAt: now.Add(-time.Hour)}
	newer := &scout.Event{EventID: "evt-newer", DetectedAt: now}

	_, err := store.RecordEvent(ctx, "scout-1", older)
	require.NoError(t, err)
	_, err = store.RecordEvent(ctx, "scout-1", newer)
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, "scout-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "evt-newer", events[0].EventID)
	require.Equal(t, "evt-older", events[1].EventID)
}

func TestMemoryStoreListEventsRespectsLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.RecordEvent(ctx, "scout-1", &scout.Event{EventID: string(rune('a' + i)), DetectedAt: time.Now()})
		require.NoError(t, err)
	}

	events, err := store.ListEvents(ctx, "scout-1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestMemoryStoreEmailCounter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	count, err := store.GetEmailCount(ctx, "scout-1", "2026-07-31")
	require.NoError(t, err)
	require.Zero(t, count)

	count, err = store.IncrementEmailCount(ctx, "scout-1", "2026-07-31")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = store.IncrementEmailCount(ctx, "scout-1", "2026-07-31")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = store.GetEmailCount(ctx, "scout-1", "2026-08-01")
	require.NoError(t, err)
	require.Zero(t, count, "a new date key must start from zero")
}

func TestMemoryStoreIncrementEmailCountPurgesOtherDateRows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.IncrementEmailCount(ctx, "scout-1", "2026-07-30")
	require.NoError(t, err)

	count, err := store.IncrementEmailCount(ctx, "scout-1", "2026-07-31")
	require.NoError(t, err)
	require.Equal(t, 1, count, "a new day's counter must not inherit a prior day's count")

	prior, err := store.GetEmailCount(ctx, "scout-1", "2026-07-30")
	require.NoError(t, err)
	require.Zero(t, prior, "only the current day's counter row is retained")
}

func TestMemoryStoreStepsRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.GetStepOutcome(ctx, "scout-1", "fetch")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.PutStepOutcome(ctx, "scout-1", "fetch", []byte("outcome")))

	outcome, ok, err := store.GetStepOutcome(ctx, "scout-1", "fetch")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("outcome"), outcome)

	deadline := time.Now().Add(time.Hour)
	require.NoError(t, store.PutSleepDeadline(ctx, "scout-1", "wait", deadline))

	got, ok, err := store.GetSleepDeadline(ctx, "scout-1", "wait")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, deadline.Equal(got))

	require.NoError(t, store.ClearSteps(ctx, "scout-1"))

	_, ok, err = store.GetStepOutcome(ctx, "scout-1", "fetch")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.GetSleepDeadline(ctx, "scout-1", "wait")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreHealthCheckAlwaysSucceeds(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.HealthCheck(context.Background()))
}
