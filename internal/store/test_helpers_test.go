package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession begins a session started offset after epoch.
func createTestSession(t *testing.T, s *Store, id string, offset time.Duration) Session {
	t.Helper()
	sess := Session{ID: id, StartedAt: epoch.Add(offset), Scope: "all", Partition: "partition-0"}
	if err := s.BeginSession(context.Background(), sess); err != nil {
		t.Fatalf("BeginSession(%s) failed: %v", id, err)
	}
	return sess
}
