package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/nbiso/internal/shell"
	"github.com/roach88/nbiso/internal/testutil"
)

const baseConfig = `package: cirq
pre_release_pin: "~=1.0.dev"
skip:
  - docs/skip.ipynb
`

// writeRepo creates a repository root holding files.
func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// basicRepo has two runnable notebooks and a skipped one.
func basicRepo(t *testing.T) string {
	return writeRepo(t, map[string]string{
		"nbiso.yaml":      baseConfig,
		"docs/a.ipynb":    `{"cells": []}`,
		"docs/b.ipynb":    `{"cells": []}`,
		"docs/skip.ipynb": `{"cells": []}`,
	})
}

// fakeProvisioner hands out empty directories.
type fakeProvisioner struct {
	dir string

	mu    sync.Mutex
	count int
}

func (p *fakeProvisioner) Clone(_ context.Context, _ string, _ []string) (string, error) {
	p.mu.Lock()
	p.count++
	dir := filepath.Join(p.dir, fmt.Sprintf("env-%d", p.count))
	p.mu.Unlock()
	return dir, os.MkdirAll(dir, 0o755)
}

// failing makes the notebook rel exit 1 with captured output.
func failing(runner *testutil.FakeRunner, rel string) *testutil.FakeRunner {
	return runner.On(func(cmd shell.Command) bool {
		return cmd.Name == "sh" && len(cmd.Args) == 2 && strings.Contains(cmd.Args[1], "/"+rel+"'")
	}, func(shell.Command) (*shell.Result, error) {
		return &shell.Result{
			Stdout:   []byte("Executing cell 1\n"),
			Stderr:   []byte("NameError: name 'x' is not defined\n"),
			ExitCode: 1,
		}, nil
	})
}

// env builds a LookupFunc over vars.
func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// execute runs the CLI with fakes for every external process.
func execute(t *testing.T, runner *testutil.FakeRunner, args ...string) cliResult {
	t.Helper()
	return executeContext(t, context.Background(), runner, args...)
}

func executeContext(t *testing.T, ctx context.Context, runner *testutil.FakeRunner, args ...string) cliResult {
	t.Helper()
	if runner == nil {
		runner = testutil.NewFakeRunner()
	}
	return executeOpts(t, ctx, &RootOptions{
		Runner:      runner,
		Provisioner: &fakeProvisioner{dir: t.TempDir()},
		LookupEnv:   env(nil),
	}, args...)
}

func executeOpts(t *testing.T, ctx context.Context, opts *RootOptions, args ...string) cliResult {
	t.Helper()
	cmd := newRootCommand(opts)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// decodeData unmarshals the data field of a JSON success response.
func decodeData(t *testing.T, output string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp), "output: %s", output)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
