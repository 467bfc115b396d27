package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/navincodesalot/terascout/internal/scout"
)

// Compile-time interface assertion.
var _ Store = (*PostgresStore)(nil)

// uniqueViolation is the PostgreSQL error code for a unique constraint breach.
const uniqueViolation = "23505"

// PostgresStore implements Store against a shared PostgreSQL database. Every
// query is scoped by scout_id; ScoutLocks supplies the single-writer
// guarantee the table design itself doesn't enforce.
type PostgresStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPostgresStore wraps an already-opened Connection.
func NewPostgresStore(conn *Connection, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{conn: conn, logger: logger}
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

func (s *PostgresStore) PutScout(ctx context.Context, sc *scout.Scout) error {
	const query = `
		INSERT INTO scouts (
			scout_id, query, email, source_url, source_label, source_strategy,
			created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.conn.ExecContext(ctx, query,
		sc.ScoutID, sc.Query, sc.Email,
		sc.Source.URL, sc.Source.Label, string(sc.Source.Strategy),
		sc.CreatedAt, sc.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}

		return fmt.Errorf("put scout %s: %w", sc.ScoutID, err)
	}

	s.logger.Info("scout created", "scout_id", sc.ScoutID, "source_url", sc.Source.URL)

	return nil
}

func (s *PostgresStore) GetScout(ctx context.Context, scoutID string) (*scout.Scout, error) {
	const query = `
		SELECT scout_id, query, email, source_url, source_label, source_strategy,
			created_at, expires_at, consecutive_failures, last_checked_at
		FROM scouts WHERE scout_id = $1
	`

	row := s.conn.QueryRowContext(ctx, query, scoutID)

	sc := &scout.Scout{}

	var (
		strategy      string
		lastCheckedAt sql.NullTime
	)

	err := row.Scan(&sc.ScoutID, &sc.Query, &sc.Email,
		&sc.Source.URL, &sc.Source.Label, &strategy,
		&sc.CreatedAt, &sc.ExpiresAt, &sc.ConsecutiveFailures, &lastCheckedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("get scout %s: %w", scoutID, err)
	}

	sc.Source.Strategy = scout.Strategy(strategy)
	if lastCheckedAt.Valid {
		sc.LastCheckedAt = lastCheckedAt.Time
	}

	return sc, nil
}

func (s *PostgresStore) RecordCycleOutcome(ctx context.Context, scoutID string, checkedAt time.Time, failures int) error {
	const query = `
		UPDATE scouts SET consecutive_failures = $1, last_checked_at = $2 WHERE scout_id = $3
	`

	if _, err := s.conn.ExecContext(ctx, query, failures, checkedAt, scoutID); err != nil {
		return fmt.Errorf("record cycle outcome for %s: %w", scoutID, err)
	}

	return nil
}

func (s *PostgresStore) DeleteScout(ctx context.Context, scoutID string) error {
	const query = `DELETE FROM scouts WHERE scout_id = $1`

	if _, err := s.conn.ExecContext(ctx, query, scoutID); err != nil {
		return fmt.Errorf("delete scout %s: %w", scoutID, err)
	}

	s.logger.Info("scout deleted", "scout_id", scoutID)

	return nil
}

func (s *PostgresStore) ListActiveScouts(ctx context.Context, now time.Time) ([]*scout.Scout, error) {
	const query = `
		SELECT scout_id, query, email, source_url, source_label, source_strategy,
			created_at, expires_at, consecutive_failures, last_checked_at
		FROM scouts WHERE expires_at > $1
	`

	rows, err := s.conn.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list active scouts: %w", err)
	}
	defer rows.Close()

	var scouts []*scout.Scout

	for rows.Next() {
		sc := &scout.Scout{}

		var (
			strategy      string
			lastCheckedAt sql.NullTime
		)

		if err := rows.Scan(&sc.ScoutID, &sc.Query, &sc.Email,
			&sc.Source.URL, &sc.Source.Label, &strategy,
			&sc.CreatedAt, &sc.ExpiresAt, &sc.ConsecutiveFailures, &lastCheckedAt); err != nil {
			return nil, fmt.Errorf("scan active scout: %w", err)
		}

		sc.Source.Strategy = scout.Strategy(strategy)
		if lastCheckedAt.Valid {
			sc.LastCheckedAt = lastCheckedAt.Time
		}

		scouts = append(scouts, sc)
	}

	return scouts, rows.Err()
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, scoutID string) (*scout.Snapshot, error) {
	const query = `
		SELECT source_url, content_hash, text, checked_at
		FROM scout_snapshots WHERE scout_id = $1
	`

	row := s.conn.QueryRowContext(ctx, query, scoutID)

	snap := &scout.Snapshot{}

	err := row.Scan(&snap.SourceURL, &snap.ContentHash, &snap.Text, &snap.CheckedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get snapshot for %s: %w", scoutID, err)
	}

	return snap, nil
}

func (s *PostgresStore) PutSnapshot(ctx context.Context, scoutID string, snap *scout.Snapshot) error {
	const query = `
		INSERT INTO scout_snapshots (scout_id, source_url, content_hash, text, checked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scout_id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			content_hash = EXCLUDED.content_hash,
			text = EXCLUDED.text,
			checked_at = EXCLUDED.checked_at
	`

	_, err := s.conn.ExecContext(ctx, query,
		scoutID, snap.SourceURL, snap.ContentHash, snap.Text, snap.CheckedAt)
	if err != nil {
		return fmt.Errorf("put snapshot for %s: %w", scoutID, err)
	}

	return nil
}

func (s *PostgresStore) RecordEvent(ctx context.Context, scoutID string, e *scout.Event) (bool, error) {
	const query = `
		INSERT INTO scout_events (
			event_id, scout_id, source_url, source_label, tldr, summary,
			highlights, articles, is_breaking, detected_at, notified
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (scout_id, event_id) DO NOTHING
		RETURNING event_id
	`

	highlights := pq.Array(e.Highlights)

	articlesJSON, err := marshalArticles(e.Articles)
	if err != nil {
		return false, fmt.Errorf("marshal articles for event %s: %w", e.EventID, err)
	}

	var inserted string

	err = s.conn.QueryRowContext(ctx, query,
		e.EventID, scoutID, e.SourceURL, e.SourceLabel, e.TLDR, e.Summary,
		highlights, articlesJSON, e.IsBreaking, e.DetectedAt, e.Notified,
	).Scan(&inserted)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("record event %s: %w", e.EventID, err)
	}

	s.logger.Info("event recorded", "scout_id", scoutID, "event_id", e.EventID, "breaking", e.IsBreaking)

	return true, nil
}

func (s *PostgresStore) MarkNotified(ctx context.Context, scoutID, eventID string) error {
	const query = `UPDATE scout_events SET notified = true WHERE scout_id = $1 AND event_id = $2`

	if _, err := s.conn.ExecContext(ctx, query, scoutID, eventID); err != nil {
		return fmt.Errorf("mark notified %s/%s: %w", scoutID, eventID, err)
	}

	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, scoutID string, limit int) ([]*scout.Event, error) {
	const query = `
		SELECT event_id, source_url, source_label, tldr, summary, highlights,
			articles, is_breaking, detected_at, notified
		FROM scout_events
		WHERE scout_id = $1
		ORDER BY detected_at DESC
		LIMIT $2
	`

	rows, err := s.conn.QueryContext(ctx, query, scoutID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", scoutID, err)
	}
	defer rows.Close()

	var events []*scout.Event

	for rows.Next() {
		e := &scout.Event{}

		var articlesJSON string

		if err := rows.Scan(&e.EventID, &e.SourceURL, &e.SourceLabel, &e.TLDR, &e.Summary,
			pq.Array(&e.Highlights), &articlesJSON, &e.IsBreaking, &e.DetectedAt, &e.Notified); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		articles, err := unmarshalArticles(articlesJSON)
		if err != nil {
			return nil, fmt.Errorf("unmarshal articles for event %s: %w", e.EventID, err)
		}

		e.Articles = articles
		events = append(events, e)
	}

	return events, rows.Err()
}

func (s *PostgresStore) GetEmailCount(ctx context.Context, scoutID, dateKey string) (int, error) {
	const query = `SELECT count FROM scout_email_counter WHERE scout_id = $1 AND date_key = $2`

	var count int

	err := s.conn.QueryRowContext(ctx, query, scoutID, dateKey).Scan(&count)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("get email count for %s/%s: %w", scoutID, dateKey, err)
	}

	return count, nil
}

func (s *PostgresStore) IncrementEmailCount(ctx context.Context, scoutID, dateKey string) (int, error) {
	// Only the current day's counter row is retained per spec.md §4.1 —
	// the purge CTE runs in the same statement as the upsert so the two
	// are never observably out of sync.
	const query = `
		WITH upsert AS (
			INSERT INTO scout_email_counter (scout_id, date_key, count)
			VALUES ($1, $2, 1)
			ON CONFLICT (scout_id, date_key) DO UPDATE SET count = scout_email_counter.count + 1
			RETURNING count
		), purge AS (
			DELETE FROM scout_email_counter WHERE scout_id = $1 AND date_key <> $2
		)
		SELECT count FROM upsert
	`

	var count int

	if err := s.conn.QueryRowContext(ctx, query, scoutID, dateKey).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment email count for %s/%s: %w", scoutID, dateKey, err)
	}

	return count, nil
}

func (s *PostgresStore) GetStepOutcome(ctx context.Context, scoutID, name string) ([]byte, bool, error) {
	const query = `SELECT outcome FROM scout_steps WHERE scout_id = $1 AND step_name = $2`

	var outcome []byte

	err := s.conn.QueryRowContext(ctx, query, scoutID, name).Scan(&outcome)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get step outcome %s/%s: %w", scoutID, name, err)
	}

	return outcome, true, nil
}

func (s *PostgresStore) PutStepOutcome(ctx context.Context, scoutID, name string, value []byte) error {
	const query = `
		INSERT INTO scout_steps (scout_id, step_name, outcome, recorded_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (scout_id, step_name) DO UPDATE SET
			outcome = EXCLUDED.outcome, recorded_at = EXCLUDED.recorded_at
	`

	if _, err := s.conn.ExecContext(ctx, query, scoutID, name, value); err != nil {
		return fmt.Errorf("put step outcome %s/%s: %w", scoutID, name, err)
	}

	return nil
}

func (s *PostgresStore) GetSleepDeadline(ctx context.Context, scoutID, name string) (time.Time, bool, error) {
	const query = `SELECT sleep_deadline FROM scout_steps WHERE scout_id = $1 AND step_name = $2`

	var deadline sql.NullTime

	err := s.conn.QueryRowContext(ctx, query, scoutID, name).Scan(&deadline)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, fmt.Errorf("get sleep deadline %s/%s: %w", scoutID, name, err)
	}

	if !deadline.Valid {
		return time.Time{}, false, nil
	}

	return deadline.Time, true, nil
}

func (s *PostgresStore) PutSleepDeadline(ctx context.Context, scoutID, name string, deadline time.Time) error {
	const query = `
		INSERT INTO scout_steps (scout_id, step_name, sleep_deadline, recorded_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (scout_id, step_name) DO UPDATE SET
			sleep_deadline = EXCLUDED.sleep_deadline, recorded_at = EXCLUDED.recorded_at
	`

	if _, err := s.conn.ExecContext(ctx, query, scoutID, name, deadline); err != nil {
		return fmt.Errorf("put sleep deadline %s/%s: %w", scoutID, name, err)
	}

	return nil
}

func (s *PostgresStore) ClearSteps(ctx context.Context, scoutID string) error {
	const query = `DELETE FROM scout_steps WHERE scout_id = $1`

	if _, err := s.conn.ExecContext(ctx, query, scoutID); err != nil {
		return fmt.Errorf("clear steps for %s: %w", scoutID, err)
	}

	return nil
}

func marshalArticles(articles []scout.Article) (string, error) {
	if len(articles) == 0 {
		return "[]", nil
	}

	b, err := json.Marshal(articles)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func unmarshalArticles(raw string) ([]scout.Article, error) {
	var articles []scout.Article

	if raw == "" || raw == "[]" {
		return articles, nil
	}

	if err := json.Unmarshal([]byte(raw), &articles); err != nil {
		return nil, err
	}

	return articles, nil
}
