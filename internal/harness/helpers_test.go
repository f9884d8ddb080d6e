package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/executor"
	"github.com/roach88/nbiso/internal/shell"
	"github.com/roach88/nbiso/internal/testutil"
)

const testSessionID = "0190a000-0000-7000-8000-000000000001"

// testRepo lays out a repository with two runnable notebooks, a skipped
// one, and notebooks in pruned directories.
func testRepo(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"nbiso.yaml":                      "package: cirq\n",
		"docs/a.ipynb":                    `{"cells": ["slow_call(1)"]}`,
		"docs/b.ipynb":                    `{"cells": []}`,
		"docs/skip.ipynb":                 `{"cells": []}`,
		"docs/.ipynb_checkpoints/a.ipynb": `{}`,
		"out/docs/a.out.ipynb":            `{}`,
		"out/stale.ipynb":                 `{}`,
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.New(root)
	cfg.Path = filepath.Join(root, "nbiso.yaml")
	cfg.Package = "cirq"
	cfg.PreReleasePin = "~=1.0.dev"
	cfg.Skip = []string{"docs/skip.ipynb"}
	cfg.Venv.WorkDir = t.TempDir()
	return cfg
}

// fakeProvisioner hands out empty directories.
type fakeProvisioner struct {
	dir string
	err error

	mu    sync.Mutex
	count int
}

func (p *fakeProvisioner) Clone(_ context.Context, _ string, _ []string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	p.count++
	dir := filepath.Join(p.dir, fmt.Sprintf("env-%d", p.count))
	p.mu.Unlock()
	return dir, os.MkdirAll(dir, 0o755)
}

func (p *fakeProvisioner) clones() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// runsNotebook matches the execution script of a notebook.
func runsNotebook(rel string) testutil.Matcher {
	return func(cmd shell.Command) bool {
		return cmd.Name == "sh" && len(cmd.Args) == 2 && strings.Contains(cmd.Args[1], "/"+rel+"'")
	}
}

// failingB makes docs/b.ipynb fail with captured output.
func failingB() *testutil.FakeRunner {
	return testutil.NewFakeRunner().On(runsNotebook("docs/b.ipynb"), func(shell.Command) (*shell.Result, error) {
		return &shell.Result{
			Stdout:   []byte("Executing cell 1\n"),
			Stderr:   []byte("NameError: name 'x' is not defined\n"),
			ExitCode: 1,
		}, nil
	})
}

type fixture struct {
	cfg         *config.Config
	runner      *testutil.FakeRunner
	provisioner *fakeProvisioner
	report      *bytes.Buffer
	harness     *Harness
}

func newFixture(t *testing.T, runner *testutil.FakeRunner, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		cfg:         testRepo(t),
		runner:      runner,
		provisioner: &fakeProvisioner{dir: t.TempDir()},
		report:      &bytes.Buffer{},
	}
	logger := zaptest.NewLogger(t)

	exec, err := executor.New(f.cfg, runner, logger)
	require.NoError(t, err)

	opts.Config = f.cfg
	opts.Logger = logger
	opts.Runner = runner
	opts.Executor = exec
	opts.Report = f.report
	if opts.Provisioner == nil {
		opts.Provisioner = f.provisioner
	}
	if opts.IDs == nil {
		opts.IDs = testutil.NewFixedIDGenerator(testSessionID)
	}
	if opts.Now == nil {
		opts.Now = testutil.NewStepClock(0).Now
	}

	f.harness, err = New(opts)
	require.NoError(t, err)
	return f
}

// normalized replaces the temporary root so reports compare stably.
func (f *fixture) normalized() []byte {
	return []byte(strings.ReplaceAll(f.report.String(), f.cfg.Root, "<root>"))
}

func assertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

var errProvision = errors.New("virtualenv-clone exited 1")
