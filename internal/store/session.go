package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session is one harness invocation.
type Session struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Scope      string    `json:"scope"`
	Partition  string    `json:"partition,omitempty"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
}

// Finished reports whether FinishSession was recorded.
func (s Session) Finished() bool {
	return !s.FinishedAt.IsZero()
}

// BeginSession records the start of a session.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, scope, partition)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		formatTime(sess.StartedAt),
		sess.Scope,
		sess.Partition,
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// FinishSession records the totals of a session.
func (s *Store) FinishSession(ctx context.Context, id string, finishedAt time.Time, passed, failed int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET finished_at = ?, passed = ?, failed = ?, total = ?
		WHERE id = ?
	`,
		formatTime(finishedAt),
		passed,
		failed,
		passed+failed,
		id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// ReadSession returns a session by id.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, scope, partition, passed, failed, total
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("read session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ListSessions returns up to limit sessions, newest first.
// A limit below 1 returns every session.
//
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, scope, partition, passed, failed, total
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess              Session
		started, finished string
	)
	if err := row.Scan(&sess.ID, &started, &finished, &sess.Scope, &sess.Partition,
		&sess.Passed, &sess.Failed, &sess.Total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	var err error
	if sess.StartedAt, err = parseTime(started); err != nil {
		return Session{}, fmt.Errorf("session %s started_at: %w", sess.ID, err)
	}
	if sess.FinishedAt, err = parseTime(finished); err != nil {
		return Session{}, fmt.Errorf("session %s finished_at: %w", sess.ID, err)
	}
	return sess, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
