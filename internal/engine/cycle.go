package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/navincodesalot/terascout/internal/config"
	"github.com/navincodesalot/terascout/internal/eventbus"
	"github.com/navincodesalot/terascout/internal/llm"
	"github.com/navincodesalot/terascout/internal/scout"
)

// fetchResult is the fetch step's memoized outcome.
type fetchResult struct {
	Text string
	Hash string
}

// recordResult is the record-event step's memoized outcome.
type recordResult struct {
	Inserted bool
}

// RunCycle executes cycle index c of rt's scout to completion: load
// config, check expiration, check the email budget, process the
// scout's source, and sleep for the poll interval. Returns expired=true
// when the scout's expiresAt has been reached — the caller must not
// invoke RunCycle again for this scout once that happens.
func RunCycle(ctx context.Context, rt *Runtime, c int, cfg *config.EngineConfig) (expired bool, err error) {
	cfgStep, err := Step(ctx, rt, fmt.Sprintf("load-config-%d", c), func(ctx context.Context) (*scout.Scout, error) {
		return rt.Store.GetScout(ctx, rt.ScoutID)
	})
	if err != nil {
		return false, err
	}

	// Memoized so a replayed, already-in-flight cycle doesn't re-evaluate
	// expiration against a later wall clock than the cycle originally saw.
	expired, err = Step(ctx, rt, fmt.Sprintf("expire-check-%d", c), func(ctx context.Context) (bool, error) {
		return cfgStep.Expired(time.Now()), nil
	})
	if err != nil {
		return false, err
	}

	if expired {
		return true, nil
	}

	dateKey := scout.DateKey(time.Now())

	emailCount, err := Step(ctx, rt, fmt.Sprintf("email-count-%d", c), func(ctx context.Context) (int, error) {
		return rt.Store.GetEmailCount(ctx, rt.ScoutID, dateKey)
	})
	if err != nil {
		return false, err
	}

	canEmail := emailCount < cfg.MaxEmailsPerScoutPerDay

	fetchFailed, err := rt.runSource(ctx, c, cfgStep, canEmail, cfg)
	if err != nil {
		return false, err
	}

	newFailures := 0
	if fetchFailed {
		newFailures = cfgStep.ConsecutiveFailures + 1
	}

	if _, err := Step(ctx, rt, fmt.Sprintf("cycle-outcome-%d", c), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, rt.Store.RecordCycleOutcome(ctx, rt.ScoutID, time.Now(), newFailures)
	}); err != nil {
		return false, err
	}

	if err := Sleep(ctx, rt, fmt.Sprintf("wait-%d", c), cfg.PollInterval); err != nil {
		return false, err
	}

	return false, nil
}

// runSource processes the scout's single source for cycle c. A fetch
// failure (after its own retries are exhausted) is swallowed here —
// spec.md §4.2 treats it as "skip the source for this cycle", never as
// a cycle-aborting error — but is reported back via fetchFailed so the
// caller can update the scout's consecutive-failure counter.
func (rt *Runtime) runSource(ctx context.Context, c int, cfgScout *scout.Scout, canEmail bool, cfg *config.EngineConfig) (fetchFailed bool, err error) {
	label := cfgScout.Source.Label
	url := cfgScout.Source.URL

	fetched, err := Step(ctx, rt, fmt.Sprintf("fetch-%d-%s", c, label), func(ctx context.Context) (fetchResult, error) {
		var result fetchResult

		err := rt.retryFetch(ctx, func(attemptCtx context.Context) error {
			text, fetchErr := rt.Fetch.Fetch(attemptCtx, url)
			if fetchErr != nil {
				return fetchErr
			}

			if len(text) > cfg.MaxSnapshotTextLength {
				text = text[:cfg.MaxSnapshotTextLength]
			}

			result = fetchResult{Text: text, Hash: hashText(text)}

			return nil
		})

		return result, err
	})
	if err != nil {
		rt.Logger.Warn("engine: fetch failed, skipping source for cycle", "scout_id", rt.ScoutID, "cycle", c, "label", label, "error", err)
		return true, nil
	}

	prev, err := Step(ctx, rt, fmt.Sprintf("snapshot-%d-%s", c, label), func(ctx context.Context) (*scout.Snapshot, error) {
		return rt.Store.GetSnapshot(ctx, rt.ScoutID)
	})
	if err != nil {
		return false, err
	}

	isBaseline := prev.IsBaseline()

	_, err = Step(ctx, rt, fmt.Sprintf("save-snapshot-%d-%s", c, label), func(ctx context.Context) (struct{}, error) {
		snap := &scout.Snapshot{
			SourceURL:   url,
			ContentHash: fetched.Hash,
			Text:        fetched.Text,
			CheckedAt:   time.Now(),
		}

		return struct{}{}, rt.Store.PutSnapshot(ctx, rt.ScoutID, snap)
	})
	if err != nil {
		return false, err
	}

	if isBaseline {
		return false, nil
	}

	prevText := ""
	if prev != nil {
		prevText = truncate(prev.Text, cfg.MaxAITextLength)
	}

	analysis, err := Step(ctx, rt, fmt.Sprintf("analyze-%d-%s", c, label), func(ctx context.Context) (llm.Analysis, error) {
		return rt.LLM.AnalyzeChange(ctx, prevText, truncate(fetched.Text, cfg.MaxAITextLength), cfgScout.Query)
	})
	if err != nil {
		return false, err
	}

	if !analysis.IsEvent {
		return false, nil
	}

	isDup, err := Step(ctx, rt, fmt.Sprintf("dedupe-%d-%s", c, label), func(ctx context.Context) (bool, error) {
		recent, listErr := rt.Store.ListEvents(ctx, rt.ScoutID, cfg.DedupeLookback)
		if listErr != nil {
			return false, listErr
		}

		summaries := make([]string, 0, len(recent))
		for _, e := range recent {
			summaries = append(summaries, e.Summary)
		}

		return rt.LLM.Dedup(ctx, analysis.Summary, summaries)
	})
	if err != nil {
		return false, err
	}

	if isDup {
		return false, nil
	}

	var oldHash string
	if prev != nil {
		oldHash = prev.ContentHash
	}

	eventID, err := Step(ctx, rt, fmt.Sprintf("hash-event-%d-%s", c, label), func(ctx context.Context) (string, error) {
		return scout.EventID(url, oldHash, fetched.Hash), nil
	})
	if err != nil {
		return false, err
	}

	recorded, err := Step(ctx, rt, fmt.Sprintf("record-event-%d-%s", c, label), func(ctx context.Context) (recordResult, error) {
		event := &scout.Event{
			EventID:     eventID,
			SourceURL:   url,
			SourceLabel: label,
			TLDR:        analysis.TLDR,
			Summary:     analysis.Summary,
			Highlights:  analysis.Highlights,
			IsBreaking:  analysis.IsBreaking,
			DetectedAt:  time.Now(),
		}

		inserted, recordErr := rt.Store.RecordEvent(ctx, rt.ScoutID, event)

		return recordResult{Inserted: inserted}, recordErr
	})
	if err != nil {
		return false, err
	}

	rt.publish(ctx, eventbus.EventScoutEventDetected, map[string]any{
		"event_id": eventID,
		"label":    label,
	})

	if recorded.Inserted && canEmail {
		_, err = Step(ctx, rt, fmt.Sprintf("email-%d-%s", c, label), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, rt.sendAndCountEmail(ctx, cfgScout, eventID, analysis)
		})
		if err != nil {
			return false, err
		}

		rt.publish(ctx, eventbus.EventScoutEmailSent, map[string]any{
			"event_id": eventID,
			"label":    label,
		})
	}

	return false, nil
}

// sendAndCountEmail sends the notification and increments the day's
// email counter in one step body, so send-without-count or
// count-without-send is never observable across a restart (per
// spec.md §4.2's tie-break rule).
func (rt *Runtime) sendAndCountEmail(ctx context.Context, s *scout.Scout, eventID string, analysis llm.Analysis) error {
	subject := analysis.TLDR
	if subject == "" {
		subject = "Terascout: new update for your scout"
	}

	html := renderEmailHTML(analysis)

	if err := rt.retryEmail(ctx, func(attemptCtx context.Context) error {
		return rt.Mailer.Send(attemptCtx, "scouts@terascout.example.com", s.Email, subject, html)
	}); err != nil {
		return fmt.Errorf("engine: email send failed: %w", err)
	}

	if _, err := rt.Store.IncrementEmailCount(ctx, rt.ScoutID, scout.DateKey(time.Now())); err != nil {
		return fmt.Errorf("engine: email count increment failed: %w", err)
	}

	if err := rt.Store.MarkNotified(ctx, rt.ScoutID, eventID); err != nil {
		return fmt.Errorf("engine: mark notified failed: %w", err)
	}

	return nil
}

func renderEmailHTML(a llm.Analysis) string {
	html := "<h2>" + a.TLDR + "</h2><p>" + a.Summary + "</p>"

	if len(a.Highlights) > 0 {
		html += "<ul>"
		for _, h := range a.Highlights {
			html += "<li>" + h + "</li>"
		}
		html += "</ul>"
	}

	return html
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:max]
}
