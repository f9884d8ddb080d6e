package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/nbiso/internal/artifacts"
	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/executor"
	"github.com/roach88/nbiso/internal/notebook"
	"github.com/roach88/nbiso/internal/shell"
	"github.com/roach88/nbiso/internal/store"
	"github.com/roach88/nbiso/internal/vcs"
	"github.com/roach88/nbiso/internal/venv"
)

// Recorder persists session history. *store.Store implements it.
type Recorder interface {
	BeginSession(ctx context.Context, sess store.Session) error
	WriteRun(ctx context.Context, run store.Run) error
	FinishSession(ctx context.Context, id string, finishedAt time.Time, passed, failed int) error
}

// Options configures a Harness. Only Config is required; every other
// collaborator defaults to the real implementation.
type Options struct {
	Config *config.Config
	Logger *zap.Logger

	Runner      shell.Runner
	Provisioner venv.Provisioner
	Executor    *executor.Executor
	Selector    *vcs.Selector

	// Recorder and Uploader are optional.
	Recorder Recorder
	Uploader artifacts.Uploader

	IDs IDGenerator
	Now func() time.Time

	// Report receives pass lines and failure diagnostics. Defaults to
	// io.Discard.
	Report io.Writer
}

// Harness collects and runs notebook test cases.
type Harness struct {
	cfg         *config.Config
	logger      *zap.Logger
	provisioner venv.Provisioner
	executor    *executor.Executor
	selector    *vcs.Selector
	recorder    Recorder
	uploader    artifacts.Uploader
	ids         IDGenerator
	now         func() time.Time
	report      io.Writer
}

// Plan is the collected set of cases of a session.
type Plan struct {
	Scope     Scope               `json:"scope"`
	Partition string              `json:"partition,omitempty"`
	Cases     []notebook.TestCase `json:"cases"`
}

// New creates a harness from opts.
func New(opts Options) (*Harness, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("harness: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Harness{
		cfg:         cfg,
		logger:      opts.Logger,
		provisioner: opts.Provisioner,
		executor:    opts.Executor,
		selector:    opts.Selector,
		recorder:    opts.Recorder,
		uploader:    opts.Uploader,
		ids:         opts.IDs,
		now:         opts.Now,
		report:      opts.Report,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = shell.NewExecRunner()
	}
	if h.provisioner == nil {
		h.provisioner = venv.New(cfg.Venv, runner, h.logger)
	}
	if h.executor == nil {
		exec, err := executor.New(cfg, runner, h.logger)
		if err != nil {
			return nil, err
		}
		h.executor = exec
	}
	if h.selector == nil {
		h.selector = &vcs.Selector{
			Git:        &vcs.Git{Runner: runner, Root: cfg.Root},
			Candidates: cfg.BaseRevisions,
			Escalate:   cfg.EscalationPatterns(),
			ListAll:    h.listAll,
			Logger:     h.logger,
		}
	}
	if h.ids == nil {
		h.ids = UUIDv7Generator{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.report == nil {
		h.report = io.Discard
	}
	return h, nil
}

// Close releases what the provisioner keeps between cases, such as base
// environments. Provisioners without a Close method hold nothing.
func (h *Harness) Close() error {
	if c, ok := h.provisioner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Collect lists the notebooks in scope, removes skipped ones, and keeps the
// cases of partition. An empty partition keeps every case.
func (h *Harness) Collect(ctx context.Context, scope Scope, partition string) (*Plan, error) {
	var (
		refs []notebook.Ref
		err  error
	)
	switch scope {
	case ScopeAll:
		refs, err = h.listAll()
	case ScopeChanged:
		refs, err = h.selector.ChangedNotebooks(ctx)
	default:
		_, err = ParseScope(string(scope))
	}
	if err != nil {
		return nil, err
	}

	refs, err = notebook.Filter(refs, h.cfg.SkipPatterns())
	if err != nil {
		return nil, fmt.Errorf("filter skipped notebooks: %w", err)
	}

	cases, err := notebook.Partition(refs, h.cfg.Partitions)
	if err != nil {
		return nil, err
	}
	cases = notebook.SelectPartition(cases, partition)

	h.logger.Info("collected notebooks",
		zap.String("scope", string(scope)),
		zap.String("partition", partition),
		zap.Int("cases", len(cases)))

	return &Plan{Scope: scope, Partition: partition, Cases: cases}, nil
}

func (h *Harness) listAll() ([]notebook.Ref, error) {
	return notebook.ListAll(h.cfg.Root, []string{h.cfg.OutDir})
}

// Run executes the cases of plan with up to jobs running at once.
//
// The returned summary always covers every case. The error is non-nil only
// when ctx was cancelled.
func (h *Harness) Run(ctx context.Context, plan *Plan, jobs int) (*Summary, error) {
	if jobs < 1 {
		jobs = 1
	}
	summary := NewSummary(h.ids.Generate())
	start := h.now()

	h.record(func() error {
		return h.recorder.BeginSession(ctx, store.Session{
			ID:        summary.SessionID,
			StartedAt: start,
			Scope:     string(plan.Scope),
			Partition: plan.Partition,
		})
	})

	results := make([]*CaseResult, len(plan.Cases))
	rep := &orderedReporter{h: h, results: results}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, tc := range plan.Cases {
		i, tc := i, tc
		g.Go(func() error {
			res := h.runCase(gctx, summary.SessionID, tc)
			h.recordRun(gctx, summary.SessionID, i, res)
			rep.done(i, res)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		summary.Add(r)
	}
	summary.Duration = h.now().Sub(start)

	h.record(func() error {
		// The session row is finished even after cancellation.
		return h.recorder.FinishSession(context.WithoutCancel(ctx), summary.SessionID,
			start.Add(summary.Duration), summary.Passed, summary.Failed)
	})

	h.logger.Info("session finished",
		zap.String("session", summary.SessionID),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed))

	return summary, ctx.Err()
}

func (h *Harness) runCase(ctx context.Context, sessionID string, tc notebook.TestCase) *CaseResult {
	res := &CaseResult{Case: tc}
	ref := tc.Notebook
	logger := h.logger.With(zap.String("notebook", ref.Rel), zap.String("partition", tc.Partition))

	if err := ctx.Err(); err != nil {
		res.Message = ErrorMessage(ref.Rel, err)
		return res
	}

	input, rewritten, err := notebook.Rewrite(ref.Path, h.cfg.SubstitutionExt, "")
	if err != nil {
		res.Message = ErrorMessage(ref.Rel, err)
		return res
	}
	req := executor.Request{Notebook: ref, Input: input, Rewritten: rewritten}

	env, err := h.provisioner.Clone(ctx, h.cfg.Venv.EnvName, h.cfg.Packages)
	if err != nil {
		h.executor.Discard(req)
		res.Message = ErrorMessage(ref.Rel, err)
		return res
	}
	req.EnvDir = env

	out, err := h.executor.Run(ctx, req)
	if err != nil {
		h.executor.Discard(req)
		res.Message = ErrorMessage(ref.Rel, err)
		return res
	}
	res.Exec = out
	if !out.Passed() {
		res.Message = FailureMessage(h.cfg, ref.Rel, out.OutputPath)
	}
	logger.Debug("notebook finished",
		zap.Int("exit_code", out.ExitCode),
		zap.Duration("duration", out.Duration))

	if h.uploader != nil {
		key, err := h.uploader.Upload(ctx, sessionID, out)
		if err != nil {
			logger.Warn("artifact upload failed", zap.Error(err))
		}
		res.ArtifactKey = key
	}
	return res
}

func (h *Harness) recordRun(ctx context.Context, sessionID string, seq int, res *CaseResult) {
	h.record(func() error {
		run := store.Run{
			SessionID:   sessionID,
			Seq:         seq,
			Notebook:    res.Case.Notebook.Rel,
			Partition:   res.Case.Partition,
			Passed:      res.Passed(),
			Error:       res.Message,
			ArtifactKey: res.ArtifactKey,
			ExitCode:    -1,
		}
		if res.Exec != nil {
			run.ExitCode = res.Exec.ExitCode
			run.Duration = res.Exec.Duration
			run.OutputPath = res.Exec.OutputPath
			run.LogPath = res.Exec.LogPath
		}
		return h.recorder.WriteRun(context.WithoutCancel(ctx), run)
	})
}

// record runs fn when a recorder is configured. History is best effort.
func (h *Harness) record(fn func() error) {
	if h.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		h.logger.Warn("failed to record history", zap.Error(err))
	}
}

// orderedReporter writes case reports in collected order as they complete.
type orderedReporter struct {
	h       *Harness
	mu      sync.Mutex
	results []*CaseResult
	next    int
}

func (r *orderedReporter) done(i int, res *CaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[i] = res
	for r.next < len(r.results) && r.results[r.next] != nil {
		if err := WriteCase(r.h.report, r.results[r.next]); err != nil {
			r.h.logger.Warn("failed to write report", zap.Error(err))
		}
		r.next++
	}
}
