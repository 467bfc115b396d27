package email

import (
	"context"
	"log/slog"
)

// ConsoleSender logs the email instead of sending it. Used in dev and
// tests so the engine can be exercised end-to-end without a real SMTP
// relay configured.
type ConsoleSender struct {
	logger *slog.Logger
}

// NewConsoleSender builds a ConsoleSender; a nil logger falls back to
// slog.Default().
func NewConsoleSender(logger *slog.Logger) *ConsoleSender {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConsoleSender{logger: logger}
}

// Send logs the email at info level and always succeeds.
func (s *ConsoleSender) Send(_ context.Context, from, to, subject, html string) error {
	s.logger.Info("email: would send", "from", from, "to", to, "subject", subject, "body_len", len(html))
	return nil
}

var _ Sender = (*ConsoleSender)(nil)
