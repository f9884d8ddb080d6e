package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/executor"
	"github.com/roach88/nbiso/internal/notebook"
	"github.com/roach88/nbiso/internal/shell"
	"github.com/roach88/nbiso/internal/store"
	"github.com/roach88/nbiso/internal/testutil"
	"github.com/roach88/nbiso/internal/venv"
)

func caseRels(cases []notebook.TestCase) []string {
	out := []string{}
	for _, c := range cases {
		out = append(out, c.Notebook.Rel)
	}
	return out
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.New(t.TempDir())
	cfg.Partitions = 0

	_, err := New(Options{Config: cfg})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCollect_AllSkipsAndPrunes(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{})

	plan, err := f.harness.Collect(context.Background(), ScopeAll, "")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, plan.Scope)
	assert.Equal(t, []string{"docs/a.ipynb", "docs/b.ipynb"}, caseRels(plan.Cases))
	for _, c := range plan.Cases {
		assert.Equal(t, "partition-0", c.Partition)
	}
}

func TestCollect_SelectsPartition(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{})
	f.cfg.Partitions = 2

	plan, err := f.harness.Collect(context.Background(), ScopeAll, "partition-1")
	require.NoError(t, err)
	require.Len(t, plan.Cases, 1)
	assert.Equal(t, "docs/b.ipynb", plan.Cases[0].Notebook.Rel)
	assert.Equal(t, "partition-1", plan.Partition)
}

func TestCollect_ChangedScope(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On(testutil.Match("git", "cat-file"), testutil.Reply("commit\n", 0)).
		On(testutil.Match("git", "diff"), testutil.Reply("docs/b.ipynb\ndocs/skip.ipynb\nsrc/lib.py\n", 0))
	f := newFixture(t, runner, Options{})

	plan, err := f.harness.Collect(context.Background(), ScopeChanged, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/b.ipynb"}, caseRels(plan.Cases))
}

func TestCollect_ChangedScopeEscalatesOnConfigChange(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On(testutil.Match("git", "cat-file"), testutil.Reply("commit\n", 0)).
		On(testutil.Match("git", "diff"), testutil.Reply("nbiso.yaml\n", 0))
	f := newFixture(t, runner, Options{})

	plan, err := f.harness.Collect(context.Background(), ScopeChanged, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a.ipynb", "docs/b.ipynb"}, caseRels(plan.Cases))
}

func TestCollect_ChangedScopeWithoutHistoryIsEmpty(t *testing.T) {
	runner := testutil.NewFakeRunner().On(testutil.Match("git", "cat-file"), testutil.Reply("", 128))
	f := newFixture(t, runner, Options{})

	plan, err := f.harness.Collect(context.Background(), ScopeChanged, "")
	require.NoError(t, err)
	assert.Empty(t, plan.Cases)
}

func TestCollect_UnknownScope(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{})

	_, err := f.harness.Collect(context.Background(), Scope("some"), "")
	assert.Error(t, err)
}

func TestRun_GoldenReport(t *testing.T) {
	f := newFixture(t, failingB(), Options{})
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 1)
	require.NoError(t, err)
	require.NoError(t, WriteSummary(f.report, summary))

	assert.Equal(t, testSessionID, summary.SessionID)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.OK())

	assertGolden(t, "run_report", f.normalized())
}

func TestRun_ParallelReportKeepsCollectedOrder(t *testing.T) {
	f := newFixture(t, failingB(), Options{})
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 4)
	require.NoError(t, err)
	require.NoError(t, WriteSummary(f.report, summary))

	assertGolden(t, "run_report", f.normalized())
}

func TestRun_EachCaseGetsItsOwnEnvironment(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{})
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 2)
	require.NoError(t, err)

	assert.True(t, summary.OK())
	assert.Equal(t, 2, f.provisioner.clones())

	dirs := map[string]bool{}
	for _, call := range f.runner.Calls() {
		assert.True(t, call.Isolated)
		dirs[call.Dir] = true
	}
	assert.Len(t, dirs, 2)
}

func TestRun_FailureKeepsOutputsAndEnvironment(t *testing.T) {
	f := newFixture(t, failingB(), Options{})
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 1)
	require.NoError(t, err)

	failed := summary.Results[1]
	require.NotNil(t, failed.Exec)
	assert.False(t, failed.Exec.Cleaned)
	assert.Equal(t, filepath.Join(f.cfg.Root, "out", "docs", "b.out.ipynb"), failed.Exec.OutputPath)
	assert.FileExists(t, failed.Exec.LogPath)

	calls := f.runner.CallsTo(runsNotebook("docs/b.ipynb"))
	require.Len(t, calls, 1)
	assert.DirExists(t, calls[0].Dir, "environment of a failed notebook is kept for inspection")
}

func TestRun_RewrittenNotebookIsExecuted(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{})
	tst := filepath.Join(f.cfg.Root, "docs", "a.tst")
	require.NoError(t, os.WriteFile(tst, []byte("slow_call\\((.*)\\)->fast_call(\\1)\n"), 0o644))

	var (
		mu     sync.Mutex
		inputs []string
	)
	f.runner.On(testutil.Match("sh"), func(cmd shell.Command) (*shell.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		inputs = append(inputs, cmd.Args[1])
		return &shell.Result{}, nil
	})

	ctx := context.Background()
	plan, err := f.harness.Collect(ctx, ScopeAll, "partition-0")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 1)
	require.NoError(t, err)
	assert.True(t, summary.OK())

	require.Len(t, inputs, 2)
	assert.NotContains(t, inputs[0], "'"+filepath.Join(f.cfg.Root, "docs", "a.ipynb")+"'")
	assert.Contains(t, inputs[0], "/a-")
	assert.Contains(t, inputs[1], "'"+filepath.Join(f.cfg.Root, "docs", "b.ipynb")+"'")
}

func TestRun_ProvisionFailure(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{
		Provisioner: &fakeProvisioner{err: errProvision},
	})
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Failed)
	assert.Empty(t, f.runner.Calls(), "nothing runs without an environment")
	assert.Equal(t, "Notebook error: docs/a.ipynb: virtualenv-clone exited 1", summary.Results[0].Message)
	assert.Contains(t, f.report.String(), "✗ docs/a.ipynb [partition-0]\nNotebook error:")
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{})
	plan, err := f.harness.Collect(context.Background(), ScopeAll, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.harness.Run(ctx, plan, 2)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Failed)
	assert.Empty(t, f.runner.Calls())
}

func TestRun_RecordsHistory(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	f := newFixture(t, failingB(), Options{Recorder: st})
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	_, err = f.harness.Run(ctx, plan, 2)
	require.NoError(t, err)

	sess, err := st.ReadSession(ctx, testSessionID)
	require.NoError(t, err)
	assert.Equal(t, "all", sess.Scope)
	assert.True(t, sess.Finished())
	assert.Equal(t, 1, sess.Passed)
	assert.Equal(t, 1, sess.Failed)

	runs, err := st.ReadRuns(ctx, testSessionID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "docs/a.ipynb", runs[0].Notebook)
	assert.True(t, runs[0].Passed)
	assert.Equal(t, "docs/b.ipynb", runs[1].Notebook)
	assert.Equal(t, 1, runs[1].ExitCode)
	assert.True(t, strings.HasPrefix(runs[1].Error, "Notebook failure: docs/b.ipynb"))
}

type recordingUploader struct {
	mu   sync.Mutex
	rels []string
}

func (u *recordingUploader) Upload(_ context.Context, sessionID string, res *executor.Result) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rels = append(u.rels, res.Notebook.Rel)
	return sessionID + "/" + res.Notebook.Rel, nil
}

func TestRun_UploadsEveryResult(t *testing.T) {
	uploader := &recordingUploader{}
	f := newFixture(t, failingB(), Options{Uploader: uploader})
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/a.ipynb", "docs/b.ipynb"}, uploader.rels)
	assert.Equal(t, testSessionID+"/docs/b.ipynb", summary.Results[1].ArtifactKey)
}

func TestClose_RemovesBaseEnvironments(t *testing.T) {
	runner := testutil.NewFakeRunner()
	f := newFixture(t, runner, Options{})
	f.harness.provisioner = venv.New(f.cfg.Venv, runner, zaptest.NewLogger(t))
	cfg := f.cfg
	ctx := context.Background()

	plan, err := f.harness.Collect(ctx, ScopeAll, "")
	require.NoError(t, err)
	summary, err := f.harness.Run(ctx, plan, 2)
	require.NoError(t, err)
	require.True(t, summary.OK())

	bases, err := os.ReadDir(cfg.Venv.WorkDir)
	require.NoError(t, err)
	require.Len(t, bases, 1, "both cases clone one base")

	require.NoError(t, f.harness.Close())
	bases, err = os.ReadDir(cfg.Venv.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, bases)
}

func TestClose_WithoutCloser(t *testing.T) {
	f := newFixture(t, testutil.NewFakeRunner(), Options{})
	assert.NoError(t, f.harness.Close())
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("changed")
	require.NoError(t, err)
	assert.Equal(t, ScopeChanged, s)

	_, err = ParseScope("everything")
	assert.Error(t, err)
}
