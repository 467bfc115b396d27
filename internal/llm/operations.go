package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExtractQuery pulls a 2-7 word search phrase and a time-sensitivity
// window out of a raw natural-language query. Any model or parse
// failure falls back to the truncated raw query with a 7-day window —
// this call must never block scout creation.
func (c *Client) ExtractQuery(ctx context.Context, rawQuery string) (string, TimeWindow, error) {
	prompt := fmt.Sprintf(extractQueryPrompt, rawQuery)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return fallbackPhrase(rawQuery), fallbackWindow, nil //nolint:nilerr // documented safe fallback
	}

	jsonStr, err := ExtractJSON(raw)
	if err != nil {
		return fallbackPhrase(rawQuery), fallbackWindow, nil //nolint:nilerr
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return fallbackPhrase(rawQuery), fallbackWindow, nil //nolint:nilerr
	}

	phrase := result.Phrase
	if phrase == "" {
		phrase = fallbackPhrase(rawQuery)
	}

	return phrase, parseWindow(result.Window), nil
}

// AnalyzeChange classifies whether newText represents a substantively
// new event relative to oldText, given the scout's original query for
// relevance context. Malformed model output is treated as isEvent=false
// per spec.md §4.2's tie-break rule.
func (c *Client) AnalyzeChange(ctx context.Context, oldText, newText, query string) (Analysis, error) {
	prompt := fmt.Sprintf(analyzeChangePrompt, query, oldText, newText)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return Analysis{}, nil //nolint:nilerr // malformed/failed output -> not an event
	}

	jsonStr, err := ExtractJSON(raw)
	if err != nil {
		return Analysis{}, nil //nolint:nilerr
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		return Analysis{}, nil //nolint:nilerr
	}

	return analysis, nil
}

// Dedup reports whether candidateSummary duplicates one of recentSummaries.
// A call failure is treated as "not a duplicate" — spec.md §4.2 prefers a
// false-positive notification over a silently dropped one.
func (c *Client) Dedup(ctx context.Context, candidateSummary string, recentSummaries []string) (bool, error) {
	if len(recentSummaries) == 0 {
		return false, nil
	}

	prompt := fmt.Sprintf(dedupPrompt, candidateSummary, formatRecent(recentSummaries))

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return false, nil //nolint:nilerr // documented safe fallback
	}

	jsonStr, err := ExtractJSON(raw)
	if err != nil {
		return false, nil //nolint:nilerr
	}

	var result dedupResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return false, nil //nolint:nilerr
	}

	return result.IsDuplicate, nil
}

func formatRecent(summaries []string) string {
	out := ""
	for i, s := range summaries {
		out += fmt.Sprintf("%d. %s\n", i+1, s)
	}

	return out
}

const extractQueryPrompt = `Extract a short web search phrase (2-7 words) from this user request, and classify its time sensitivity as one of "1d", "7d", "30d", or "none".

User request: %s

Respond with exactly one JSON object and nothing else:
{"phrase": "...", "window": "..."}`

const analyzeChangePrompt = `You are comparing two snapshots of the same web page to decide if a meaningful new event has occurred, relevant to this user's interest: %s

Previous snapshot:
%s

Current snapshot:
%s

Respond with exactly one JSON object and nothing else:
{"isEvent": bool, "tldr": "<=15 words", "summary": "2-4 sentences", "highlights": ["...", "..."], "isBreaking": bool}

If nothing substantively new appears relevant to the user's interest, set isEvent to false.`

const dedupPrompt = `Does this candidate summary describe the same underlying story as any of the recent summaries below? Answer based on substance, not wording.

Candidate:
%s

Recent summaries:
%s

Respond with exactly one JSON object and nothing else:
{"isDuplicate": bool}`
