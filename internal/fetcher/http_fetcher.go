package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxVisibleTextBytes caps the text returned to the caller.
	MaxVisibleTextBytes = 10 * 1024
	defaultUserAgent    = "TerascoutBot/1.0 (+https://terascout.example.com/bot)"
	defaultTimeout      = 30 * time.Second
	maxRetryAfterWait   = 60 * time.Second
	max429Retries       = 3
)

// ErrFetchFailed wraps a non-2xx response after all 429 retries are
// exhausted.
var ErrFetchFailed = errors.New("fetcher: fetch failed")

// HTTPFetcher fetches a URL over HTTP(S) and extracts its visible text.
// It honors Retry-After on 429 responses (up to 60s, 3 extra attempts);
// this sits underneath, and is distinct from, the engine's own per-step
// linear retry on the fetch step as a whole.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTTPFetcher builds an HTTPFetcher with the given timeout. A nil
// logger falls back to slog.Default().
func NewHTTPFetcher(timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		logger:    logger,
	}
}

// Fetch retrieves url and returns its visible text, capped at
// MaxVisibleTextBytes. Redirects are followed by the underlying
// http.Client's default policy (up to 10 hops).
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= max429Retries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("fetcher: retrying after 429", "url", url, "attempt", attempt)
		}

		body, status, retryAfter, err := f.do(ctx, url)
		if err != nil {
			return "", err
		}

		if status == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w: status %d", ErrFetchFailed, status)

			wait := retryAfter
			if wait <= 0 || wait > maxRetryAfterWait {
				wait = maxRetryAfterWait
			}

			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if status < 200 || status >= 300 {
			return "", fmt.Errorf("%w: status %d", ErrFetchFailed, status)
		}

		return extractVisibleText(body), nil
	}

	return "", lastErr
}

// do performs one HTTP GET, returning the raw body, status code, and any
// Retry-After value (0 if absent or unparsable).
func (f *HTTPFetcher) do(ctx context.Context, url string) (body string, status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, 0, fmt.Errorf("fetcher: build request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("fetcher: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, MaxVisibleTextBytes*4)

	raw, err := io.ReadAll(limited)
	if err != nil {
		return "", 0, 0, fmt.Errorf("fetcher: read body: %w", err)
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, parseErr := strconv.Atoi(v); parseErr == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
	}

	return string(raw), resp.StatusCode, retryAfter, nil
}

var (
	scriptStyleTagRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe            = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// extractVisibleText strips script/style blocks and all remaining tags,
// collapses whitespace, and truncates to MaxVisibleTextBytes. This is a
// deliberately minimal extractor — a richer one is an external
// collaborator per spec.md's Non-goals for fetching.
func extractVisibleText(html string) string {
	stripped := scriptStyleTagRe.ReplaceAllString(html, " ")
	stripped = tagRe.ReplaceAllString(stripped, " ")
	stripped = whitespaceRe.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)

	if len(stripped) > MaxVisibleTextBytes {
		stripped = stripped[:MaxVisibleTextBytes]
	}

	return stripped
}

var _ Fetcher = (*HTTPFetcher)(nil)
