package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/notebook"
	"github.com/roach88/nbiso/internal/shell"
)

// Output file suffixes, replacing the notebook extension.
const (
	OutputSuffix = ".out.ipynb"
	LogSuffix    = ".out.log"
)

// Request is one notebook execution.
type Request struct {
	Notebook notebook.Ref

	// Input is the file handed to the tool. It differs from Notebook.Path
	// when the notebook was rewritten.
	Input string

	// Rewritten marks Input as a temporary owned by the run.
	Rewritten bool

	// EnvDir is the cloned environment, owned by the run.
	EnvDir string
}

// Result is the outcome of a finished execution.
type Result struct {
	Notebook   notebook.Ref  `json:"notebook"`
	ExitCode   int           `json:"exit_code"`
	Stdout     []byte        `json:"-"`
	Stderr     []byte        `json:"-"`
	OutputPath string        `json:"output_path"`
	LogPath    string        `json:"log_path"`
	Duration   time.Duration `json:"duration"`

	// Cleaned reports whether the temporaries of the run were removed.
	Cleaned bool `json:"cleaned"`
}

// Passed reports whether the tool exited zero.
func (r *Result) Passed() bool {
	return r.ExitCode == 0
}

// Combined returns stdout and stderr as written to the log artifact.
func (r *Result) Combined() []byte {
	return (&shell.Result{Stdout: r.Stdout, Stderr: r.Stderr}).Combined()
}

// Executor runs notebooks with a configured tool.
type Executor struct {
	Runner shell.Runner
	Logger *zap.Logger

	// Root is the repository root and OutDir is relative to it.
	Root   string
	OutDir string

	Tool        string
	PreCommands []string

	// PassEnv names variables copied from LookupEnv into the cleared
	// environment.
	PassEnv   []string
	LookupEnv func(string) (string, bool)

	// Timeout bounds one run. Zero disables it.
	Timeout time.Duration

	Cleanup config.CleanupPolicy

	Now func() time.Time
}

// New creates an executor from cfg.
func New(cfg *config.Config, runner shell.Runner, logger *zap.Logger) (*Executor, error) {
	timeout, err := cfg.Exec.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Runner:      runner,
		Logger:      logger,
		Root:        cfg.Root,
		OutDir:      cfg.OutDir,
		Tool:        cfg.Exec.Tool,
		PreCommands: cfg.Exec.PreCommands,
		PassEnv:     cfg.Exec.PassEnv,
		LookupEnv:   os.LookupEnv,
		Timeout:     timeout,
		Cleanup:     cfg.Cleanup,
		Now:         time.Now,
	}, nil
}

// OutputPath is where the executed copy of ref is written:
// <root>/<out_dir>/<rel-dir>/<name>.out.ipynb.
func (e *Executor) OutputPath(ref notebook.Ref) string {
	return filepath.Join(e.Root, e.OutDir, filepath.FromSlash(ref.RelDir()), ref.Base()+OutputSuffix)
}

// LogPath is where the combined output of the run on ref is written.
func (e *Executor) LogPath(ref notebook.Ref) string {
	return strings.TrimSuffix(e.OutputPath(ref), OutputSuffix) + LogSuffix
}

// Script is the shell script run in the environment directory.
func (e *Executor) Script(input, output string) string {
	lines := []string{". ./bin/activate"}
	lines = append(lines, e.PreCommands...)
	lines = append(lines, e.Tool+" "+quote(input)+" "+quote(output))
	return strings.Join(lines, "\n")
}

// Run executes req. A non-zero exit is reported through Result, not as an
// error; errors mean the run could not take place.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	out := e.OutputPath(req.Notebook)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := shell.Command{
		Name:     "sh",
		Args:     []string{"-c", e.Script(req.Input, out)},
		Dir:      req.EnvDir,
		Env:      e.environment(),
		Isolated: true,
	}

	e.Logger.Debug("executing notebook",
		zap.String("notebook", req.Notebook.Rel),
		zap.String("env", req.EnvDir),
		zap.Bool("rewritten", req.Rewritten))

	start := e.Now()
	res, err := e.Runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", req.Notebook.Rel, err)
	}

	result := &Result{
		Notebook:   req.Notebook,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		OutputPath: out,
		LogPath:    e.LogPath(req.Notebook),
		Duration:   e.Now().Sub(start),
	}

	if err := os.WriteFile(result.LogPath, res.Combined(), 0o644); err != nil {
		return nil, fmt.Errorf("write log %s: %w", result.LogPath, err)
	}

	if e.shouldClean(result.Passed()) {
		e.clean(req)
		result.Cleaned = true
	}
	return result, nil
}

// Discard removes the temporaries of a request that never reached Run,
// following the same policy as a failed run.
func (e *Executor) Discard(req Request) {
	if e.shouldClean(false) {
		e.clean(req)
	}
}

func (e *Executor) shouldClean(passed bool) bool {
	switch e.Cleanup {
	case config.CleanupAlways:
		return true
	case config.CleanupNever:
		return false
	default:
		return passed
	}
}

func (e *Executor) clean(req Request) {
	if req.Rewritten && req.Input != "" {
		if err := os.Remove(req.Input); err != nil && !os.IsNotExist(err) {
			e.Logger.Warn("remove rewritten notebook", zap.String("path", req.Input), zap.Error(err))
		}
	}
	if req.EnvDir != "" {
		if err := os.RemoveAll(req.EnvDir); err != nil {
			e.Logger.Warn("remove environment", zap.String("dir", req.EnvDir), zap.Error(err))
		}
	}
}

func (e *Executor) environment() []string {
	env := []string{}
	for _, name := range e.PassEnv {
		if e.LookupEnv == nil {
			break
		}
		if v, ok := e.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

// quote wraps s in single quotes for sh.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
