package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbiso/internal/store"
	"github.com/roach88/nbiso/internal/testutil"
)

// recordedRun runs the basic repository once with docs/b.ipynb failing and
// returns the database path.
func recordedRun(t *testing.T) string {
	t.Helper()
	root := basicRepo(t)
	db := filepath.Join(t.TempDir(), "history.db")

	res := execute(t, failing(testutil.NewFakeRunner(), "docs/b.ipynb"), "run", "--root", root, "--db", db)
	require.Error(t, res.err)
	require.Equal(t, ExitFailure, GetExitCode(res.err))
	return db
}

func TestHistory_Sessions(t *testing.T) {
	db := recordedRun(t)

	res := execute(t, nil, "history", "--db", db)
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "  all      -             1 passed, 1 failed, 2 total")
}

func TestHistory_SessionsJSON(t *testing.T) {
	db := recordedRun(t)

	res := execute(t, nil, "history", "--db", db, "--format", "json")
	require.NoError(t, res.err)

	var sessions []store.Session
	decodeData(t, res.stdout, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "all", sessions[0].Scope)
	assert.True(t, sessions[0].Finished())
	assert.Equal(t, 2, sessions[0].Total)
}

func TestHistory_SessionRuns(t *testing.T) {
	db := recordedRun(t)

	var sessions []store.Session
	decodeData(t, execute(t, nil, "history", "--db", db, "--format", "json").stdout, &sessions)
	require.Len(t, sessions, 1)
	id := sessions[0].ID

	res := execute(t, nil, "history", "--db", db, "--session", id)
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "✓ docs/a.ipynb [partition-0] session="+id+" exit=0 duration="), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "✗ docs/b.ipynb [partition-0] session="+id+" exit=1 duration="), lines[1])
}

func TestHistory_NotebookRuns(t *testing.T) {
	db := recordedRun(t)

	res := execute(t, nil, "history", "--db", db, "--notebook", "docs/b.ipynb", "--format", "json")
	require.NoError(t, res.err)

	var runs []store.Run
	decodeData(t, res.stdout, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, "docs/b.ipynb", runs[0].Notebook)
	assert.False(t, runs[0].Passed)
	assert.Equal(t, 1, runs[0].ExitCode)
	assert.Contains(t, runs[0].Error, "Notebook failure: docs/b.ipynb")
}

func TestHistory_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")

	res := execute(t, nil, "history", "--db", db)
	require.NoError(t, res.err)
	assert.Equal(t, "No sessions recorded.\n", res.stdout)

	res = execute(t, nil, "history", "--db", db, "--notebook", "docs/a.ipynb")
	require.NoError(t, res.err)
	assert.Equal(t, "No runs recorded.\n", res.stdout)
}

func TestHistory_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{"missing db", nil, `required flag(s) "db" not set`},
		{"unknown session", []string{"--db", db, "--session", "nope"}, "failed to read session"},
		{"exclusive filters", []string{"--db", db, "--session", "s", "--notebook", "n"}, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := execute(t, nil, append([]string{"history"}, tt.args...)...)

			require.Error(t, res.err)
			assert.Equal(t, ExitCommandError, GetExitCode(res.err))
			assert.Contains(t, res.err.Error(), tt.wantMsg)
		})
	}
}
