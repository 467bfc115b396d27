package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/navincodesalot/terascout/internal/config"
	"github.com/navincodesalot/terascout/internal/llm"
	"github.com/navincodesalot/terascout/internal/scout"
	"github.com/navincodesalot/terascout/internal/storage"
)

var errTestBoom = errors.New("boom")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.EngineConfig {
	return &config.EngineConfig{
		MaxEmailsPerScoutPerDay: 10,
		DefaultLifetimeHours:    72,
		MaxLifetimeHours:        168,
		PollInterval:            time.Millisecond,
		MaxCycles:               200,
		MaxSnapshotTextLength:   5000,
		MaxAITextLength:         2500,
		DedupeLookback:          5,
	}
}

func newCycleScout(id string) *scout.Scout {
	now := time.Now()

	return &scout.Scout{
		ScoutID: id,
		Query:   "watch for pricing changes",
		Email:   "alerts@example.com",
		Source: scout.Source{
			URL:      "https://example.com/pricing",
			Label:    "pricing",
			Strategy: scout.StrategyHTMLDiff,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func newCycleRuntime(t *testing.T, s *scout.Scout, fetch *fakeFetcher, analyzer *fakeAnalyzer, mailer *fakeMailer, bus *fakeBus) (*Runtime, storage.Store) {
	t.Helper()

	store := storage.NewMemoryStore()
	require.NoError(t, store.PutScout(context.Background(), s))

	return &Runtime{
		ScoutID:      s.ScoutID,
		Store:        store,
		Fetch:        fetch,
		LLM:          analyzer,
		Mailer:       mailer,
		Bus:          bus,
		Logger:       testLogger(),
		FetchBackoff: testFetchBackoff,
		EmailBackoff: testEmailBackoff,
	}, store
}

// testFetchBackoff/testEmailBackoff mirror the real policies' shape
// (same retry counts) with near-zero intervals, so tests exercising
// retry exhaustion run in milliseconds instead of seconds.
func testFetchBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), fetchMaxRetries)
	return backoff.WithContext(bo, ctx)
}

func testEmailBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), emailMaxRetries)
	return backoff.WithContext(bo, ctx)
}

func TestRunCycleBaselineNeverEmitsEvent(t *testing.T) {
	ctx := context.Background()
	s := newCycleScout("baseline-scout")
	fetch := &fakeFetcher{results: []fetchCall{{text: "initial page content"}}}
	analyzer := &fakeAnalyzer{analysis: stubAnalysis("should not fire")}
	mailer := &fakeMailer{}
	bus := &fakeBus{}

	rt, store := newCycleRuntime(t, s, fetch, analyzer, mailer, bus)

	expired, err := RunCycle(ctx, rt, 0, testConfig())
	require.NoError(t, err)
	require.False(t, expired)

	events, err := store.ListEvents(ctx, s.ScoutID, 10)
	require.NoError(t, err)
	require.Empty(t, events, "baseline cycle must never record an event")
	require.Zero(t, mailer.sentCount())
}

func TestRunCycleDetectsEventAndEmails(t *testing.T) {
	ctx := context.Background()
	s := newCycleScout("event-scout")
	fetch := &fakeFetcher{results: []fetchCall{
		{text: "initial page content"},
		{text: "brand new pricing announced"},
	}}
	analyzer := &fakeAnalyzer{analysis: stubAnalysis("price change detected")}
	mailer := &fakeMailer{}
	bus := &fakeBus{}

	rt, store := newCycleRuntime(t, s, fetch, analyzer, mailer, bus)
	cfg := testConfig()

	_, err := RunCycle(ctx, rt, 0, cfg)
	require.NoError(t, err)

	expired, err := RunCycle(ctx, rt, 1, cfg)
	require.NoError(t, err)
	require.False(t, expired)

	events, err := store.ListEvents(ctx, s.ScoutID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Notified)
	require.Equal(t, 1, mailer.sentCount())

	count, err := store.GetEmailCount(ctx, s.ScoutID, scout.DateKey(time.Now()))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunCycleRateLimitedEventIsRecordedButNotEmailed(t *testing.T) {
	ctx := context.Background()
	s := newCycleScout("rate-limited-scout")
	fetch := &fakeFetcher{results: []fetchCall{
		{text: "initial page content"},
		{text: "brand new pricing announced"},
	}}
	analyzer := &fakeAnalyzer{analysis: stubAnalysis("price change detected")}
	mailer := &fakeMailer{}
	bus := &fakeBus{}

	rt, store := newCycleRuntime(t, s, fetch, analyzer, mailer, bus)
	cfg := testConfig()
	cfg.MaxEmailsPerScoutPerDay = 0

	_, err := RunCycle(ctx, rt, 0, cfg)
	require.NoError(t, err)

	_, err = RunCycle(ctx, rt, 1, cfg)
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, s.ScoutID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1, "event must still be recorded even when rate-limited")
	require.False(t, events[0].Notified)
	require.Zero(t, mailer.sentCount())
}

func TestRunCycleDedupSuppressesEvent(t *testing.T) {
	ctx := context.Background()
	s := newCycleScout("dedup-scout")
	fetch := &fakeFetcher{results: []fetchCall{
		{text: "initial page content"},
		{text: "brand new pricing announced"},
	}}
	analyzer := &fakeAnalyzer{analysis: stubAnalysis("price change detected"), isDup: true}
	mailer := &fakeMailer{}
	bus := &fakeBus{}

	rt, store := newCycleRuntime(t, s, fetch, analyzer, mailer, bus)
	cfg := testConfig()

	_, err := RunCycle(ctx, rt, 0, cfg)
	require.NoError(t, err)

	_, err = RunCycle(ctx, rt, 1, cfg)
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, s.ScoutID, 10)
	require.NoError(t, err)
	require.Empty(t, events, "a duplicate-flagged candidate must not be recorded")
}

func TestRunCycleFetchFailureSkipsSourceWithoutAbortingCycle(t *testing.T) {
	ctx := context.Background()
	s := newCycleScout("fetch-fail-scout")
	fetch := &fakeFetcher{results: []fetchCall{{err: errTestBoom}}}
	analyzer := &fakeAnalyzer{analysis: stubAnalysis("unused")}
	mailer := &fakeMailer{}
	bus := &fakeBus{}

	rt, store := newCycleRuntime(t, s, fetch, analyzer, mailer, bus)
	cfg := testConfig()

	expired, err := RunCycle(ctx, rt, 0, cfg)
	require.NoError(t, err, "a fetch failure must not abort the whole cycle")
	require.False(t, expired)

	snap, err := store.GetSnapshot(ctx, s.ScoutID)
	require.NoError(t, err)
	require.Nil(t, snap, "the snapshot must remain unchanged when fetch fails")

	got, err := store.GetScout(ctx, s.ScoutID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ConsecutiveFailures, "a fetch failure must bump the consecutive-failure counter")
}

func TestRunCycleConsecutiveFailuresAccumulateThenReset(t *testing.T) {
	ctx := context.Background()
	s := newCycleScout("flaky-scout")
	analyzer := &fakeAnalyzer{analysis: stubAnalysis("unused")}
	mailer := &fakeMailer{}
	bus := &fakeBus{}
	cfg := testConfig()

	fetch := &fakeFetcher{results: []fetchCall{{err: errTestBoom}}}
	rt, store := newCycleRuntime(t, s, fetch, analyzer, mailer, bus)

	_, err := RunCycle(ctx, rt, 0, cfg)
	require.NoError(t, err)

	got, err := store.GetScout(ctx, s.ScoutID)
	require.NoError(t, err)
	require.Equal(t, 1, got.ConsecutiveFailures)

	fetch.results = []fetchCall{{err: errTestBoom}}
	_, err = RunCycle(ctx, rt, 1, cfg)
	require.NoError(t, err)

	got, err = store.GetScout(ctx, s.ScoutID)
	require.NoError(t, err)
	require.Equal(t, 2, got.ConsecutiveFailures, "a second consecutive failure must increment, not reset")

	fetch.results = []fetchCall{{text: "content"}}
	_, err = RunCycle(ctx, rt, 2, cfg)
	require.NoError(t, err)

	got, err = store.GetScout(ctx, s.ScoutID)
	require.NoError(t, err)
	require.Zero(t, got.ConsecutiveFailures, "a successful fetch must reset the counter")
}

func TestRunCycleObservesExpiration(t *testing.T) {
	ctx := context.Background()
	s := newCycleScout("expired-scout")
	s.ExpiresAt = s.CreatedAt.Add(-time.Hour)

	fetch := &fakeFetcher{results: []fetchCall{{text: "content"}}}
	analyzer := &fakeAnalyzer{analysis: stubAnalysis("unused")}
	mailer := &fakeMailer{}
	bus := &fakeBus{}

	rt, store := newCycleRuntime(t, s, fetch, analyzer, mailer, bus)

	expired, err := RunCycle(ctx, rt, 0, testConfig())
	require.NoError(t, err)
	require.True(t, expired)

	events, err := store.ListEvents(ctx, s.ScoutID, 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func stubAnalysis(tldr string) llm.Analysis {
	return llm.Analysis{
		IsEvent:    true,
		TLDR:       tldr,
		Summary:    "something changed on the page",
		Highlights: []string{"detail one"},
	}
}
