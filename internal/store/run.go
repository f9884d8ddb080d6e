package store

import (
	"context"
	"fmt"
	"time"
)

// Run is the recorded outcome of one notebook in a session.
type Run struct {
	SessionID   string        `json:"session_id"`
	Seq         int           `json:"seq"`
	Notebook    string        `json:"notebook"`
	Partition   string        `json:"partition"`
	ExitCode    int           `json:"exit_code"`
	Passed      bool          `json:"passed"`
	Duration    time.Duration `json:"duration"`
	OutputPath  string        `json:"output_path,omitempty"`
	LogPath     string        `json:"log_path,omitempty"`
	Error       string        `json:"error,omitempty"`
	ArtifactKey string        `json:"artifact_key,omitempty"`
}

// WriteRun inserts a run. The session must exist (foreign key constraint).
// Uses ON CONFLICT DO NOTHING for idempotency on (session_id, seq).
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(session_id, seq, notebook, partition, exit_code, passed, duration_ms, output_path, log_path, error, artifact_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		run.SessionID,
		run.Seq,
		run.Notebook,
		run.Partition,
		run.ExitCode,
		run.Passed,
		run.Duration.Milliseconds(),
		run.OutputPath,
		run.LogPath,
		run.Error,
		run.ArtifactKey,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// ReadRuns returns the runs of a session ordered by seq.
//
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadRuns(ctx context.Context, sessionID string) ([]Run, error) {
	return s.queryRuns(ctx, `
		SELECT session_id, seq, notebook, partition, exit_code, passed, duration_ms,
		       output_path, log_path, error, artifact_key
		FROM runs
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
}

// NotebookHistory returns up to limit runs of one notebook across
// sessions, newest session first. A limit below 1 returns every run.
func (s *Store) NotebookHistory(ctx context.Context, notebook string, limit int) ([]Run, error) {
	if limit < 1 {
		limit = -1
	}
	return s.queryRuns(ctx, `
		SELECT r.session_id, r.seq, r.notebook, r.partition, r.exit_code, r.passed, r.duration_ms,
		       r.output_path, r.log_path, r.error, r.artifact_key
		FROM runs r
		JOIN sessions s ON s.id = r.session_id
		WHERE r.notebook = ?
		ORDER BY s.started_at DESC, r.session_id COLLATE BINARY DESC
		LIMIT ?
	`, notebook, limit)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run        Run
			durationMS int64
		)
		if err := rows.Scan(&run.SessionID, &run.Seq, &run.Notebook, &run.Partition,
			&run.ExitCode, &run.Passed, &durationMS, &run.OutputPath, &run.LogPath,
			&run.Error, &run.ArtifactKey); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
