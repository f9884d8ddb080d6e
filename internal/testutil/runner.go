package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/nbiso/internal/shell"
)

// Matcher selects commands for a FakeRunner handler.
type Matcher func(cmd shell.Command) bool

// HandlerFunc produces the outcome of a matched command.
type HandlerFunc func(cmd shell.Command) (*shell.Result, error)

// Match matches a command by name and leading arguments.
func Match(name string, argsPrefix ...string) Matcher {
	return func(cmd shell.Command) bool {
		if cmd.Name != name || len(cmd.Args) < len(argsPrefix) {
			return false
		}
		return slices.Equal(cmd.Args[:len(argsPrefix)], argsPrefix)
	}
}

// Reply returns a handler that always yields stdout and exit code.
func Reply(stdout string, exitCode int) HandlerFunc {
	return func(shell.Command) (*shell.Result, error) {
		return &shell.Result{Stdout: []byte(stdout), ExitCode: exitCode}, nil
	}
}

// Fail returns a handler that always yields err.
func Fail(err error) HandlerFunc {
	return func(shell.Command) (*shell.Result, error) {
		return nil, err
	}
}

type fakeHandler struct {
	match Matcher
	fn    HandlerFunc
}

// FakeRunner is a scripted shell.Runner.
//
// Handlers are consulted in registration order; the first match wins.
// Unmatched commands succeed with empty output. Every command is recorded.
//
// Thread-safety: safe for concurrent use.
type FakeRunner struct {
	mu       sync.Mutex
	handlers []fakeHandler
	calls    []shell.Command
}

// NewFakeRunner creates a runner with no handlers.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On registers a handler.
func (f *FakeRunner) On(match Matcher, fn HandlerFunc) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fakeHandler{match: match, fn: fn})
	return f
}

// Run implements shell.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd shell.Command) (*shell.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	handlers := f.handlers
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, h := range handlers {
		if h.match(cmd) {
			return h.fn(cmd)
		}
	}
	return &shell.Result{}, nil
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []shell.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shell.Command(nil), f.calls...)
}

// CallsTo returns the recorded commands matching m.
func (f *FakeRunner) CallsTo(m Matcher) []shell.Command {
	var out []shell.Command
	for _, c := range f.Calls() {
		if m(c) {
			out = append(out, c)
		}
	}
	return out
}
