// Package engine implements the per-scout polling loop: a sequence of
// named, durably-checkpointed steps that survive process restarts with
// exactly-once side-effect semantics (spec.md §4.2).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/navincodesalot/terascout/internal/email"
	"github.com/navincodesalot/terascout/internal/eventbus"
	"github.com/navincodesalot/terascout/internal/fetcher"
	"github.com/navincodesalot/terascout/internal/llm"
	"github.com/navincodesalot/terascout/internal/storage"
)

// Analyzer is the subset of llm.Client's methods the engine calls. It
// exists so tests can substitute a fake that never reaches the real
// Anthropic API; *llm.Client satisfies it directly.
type Analyzer interface {
	ExtractQuery(ctx context.Context, rawQuery string) (string, llm.TimeWindow, error)
	AnalyzeChange(ctx context.Context, oldText, newText, query string) (llm.Analysis, error)
	Dedup(ctx context.Context, candidateSummary string, recentSummaries []string) (bool, error)
}

// Runtime bundles one scout's execution dependencies: its store handle
// (already lock-scoped by the caller), and the external collaborators a
// cycle needs. One Runtime is constructed per Registry.run call and lives
// for that goroutine's lifetime.
type Runtime struct {
	ScoutID string
	Store   storage.Store
	Fetch   fetcher.Fetcher
	LLM     Analyzer
	Mailer  email.Sender
	Bus     eventbus.Bus
	Logger  *slog.Logger

	// FetchBackoff and EmailBackoff override the default retry policies
	// (fetchBackoff/emailBackoff) when non-nil — tests use this to swap
	// in a near-zero-wait policy instead of the real 5s/10s intervals.
	FetchBackoff func(context.Context) backoff.BackOff
	EmailBackoff func(context.Context) backoff.BackOff
}

// Step looks up name in the step checkpoint table; if a completed
// outcome is recorded, it is unmarshaled and returned without calling
// fn. Otherwise fn runs, and on success its result is marshaled and
// persisted before being returned. A failing fn is never memoized —
// the next invocation of Step with the same name re-runs it, which is
// what makes a crashed or errored cycle resumable.
func Step[T any](ctx context.Context, rt *Runtime, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	raw, ok, err := rt.Store.GetStepOutcome(ctx, rt.ScoutID, name)
	if err != nil {
		return zero, fmt.Errorf("engine: load step %q: %w", name, err)
	}

	if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err != nil {
			return zero, fmt.Errorf("engine: decode cached step %q: %w", name, err)
		}

		return cached, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return zero, fmt.Errorf("engine: encode step %q: %w", name, err)
	}

	if err := rt.Store.PutStepOutcome(ctx, rt.ScoutID, name, encoded); err != nil {
		return zero, fmt.Errorf("engine: persist step %q: %w", name, err)
	}

	rt.publish(ctx, eventbus.EventEngineStepCompleted, map[string]any{"step": name})

	return result, nil
}

// Sleep durably sleeps for d, keyed by name. The wake deadline is
// persisted on first entry; a crash mid-sleep resumes the remaining
// duration on restart rather than sleeping from zero again.
func Sleep(ctx context.Context, rt *Runtime, name string, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok, err := rt.Store.GetSleepDeadline(ctx, rt.ScoutID, name)
	if err != nil {
		return fmt.Errorf("engine: load sleep deadline %q: %w", name, err)
	}

	if !ok {
		deadline = time.Now().Add(d)
		if err := rt.Store.PutSleepDeadline(ctx, rt.ScoutID, name, deadline); err != nil {
			return fmt.Errorf("engine: persist sleep deadline %q: %w", name, err)
		}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish emits a best-effort telemetry event; bus failures are logged
// and never surfaced to the step that triggered them.
func (rt *Runtime) publish(ctx context.Context, kind string, payload map[string]any) {
	if rt.Bus == nil {
		return
	}

	if err := rt.Bus.Publish(ctx, eventbus.Event{Kind: kind, ScoutID: rt.ScoutID, Payload: payload}); err != nil {
		rt.Logger.Warn("engine: event publish failed", "kind", kind, "scout_id", rt.ScoutID, "error", err)
	}
}
