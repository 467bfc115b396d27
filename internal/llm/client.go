// Package llm wraps the Anthropic API calls the scout engine makes:
// search-phrase extraction at creation time, change analysis, and
// duplicate-summary detection. Every operation treats the model's output
// as untrusted text — a parse failure or unexpected shape never
// propagates as an error, it falls back to the documented safe default.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxTokens      = 1024
)

// defaultModel is the model used for all three operations: cheap and
// fast is sufficient for phrase extraction, change classification, and
// duplicate detection — none of them need a frontier model.
const defaultModel = anthropic.Model("claude-3-5-haiku-20241022")

// ErrAPIKeyRequired is returned when no Anthropic API key is configured.
var ErrAPIKeyRequired = errors.New("llm: ANTHROPIC_API_KEY is required")

// Client wraps the Anthropic SDK for the three model calls the engine
// and control plane need. It has no knowledge of scouts, steps, or
// storage — callers pass it plain strings and get back typed results.
type Client struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewClient builds a Client. The ANTHROPIC_API_KEY environment variable
// takes precedence over an explicitly supplied apiKey, matching the
// fallback order most of the pack's Anthropic wrappers use.
func NewClient(apiKey string) (*Client, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}

	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	return &Client{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          defaultModel,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// complete sends a single-turn prompt and returns the model's raw text,
// retrying transient failures with exponential backoff. Non-retryable
// errors and a context cancellation return immediately.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", errors.New("llm: empty response")
			}

			block := message.Content[0]
			if block.Type != "text" {
				return "", fmt.Errorf("llm: unexpected response block type %q", block.Type)
			}

			return block.Text, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			return "", fmt.Errorf("llm: non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("llm: failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// isRetryable classifies an Anthropic SDK error as transient.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}
