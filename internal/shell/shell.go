package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// Command describes a single subprocess invocation.
type Command struct {
	// Name is the program to run. Resolved through PATH of the parent.
	Name string

	// Args are passed to the program verbatim.
	Args []string

	// Dir is the working directory. Empty means the parent's.
	Dir string

	// Env holds KEY=VALUE entries.
	Env []string

	// Isolated clears the inherited environment before applying Env.
	Isolated bool
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the captured outcome of a finished command.
// A non-zero ExitCode is not an error; callers decide what it means.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Combined returns stdout followed by stderr, separated by a marker line
// when both are present.
func (r *Result) Combined() []byte {
	if len(r.Stderr) == 0 {
		return r.Stdout
	}
	if len(r.Stdout) == 0 {
		return r.Stderr
	}
	var buf bytes.Buffer
	buf.Write(r.Stdout)
	if !bytes.HasSuffix(r.Stdout, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString("--- stderr ---\n")
	buf.Write(r.Stderr)
	return buf.Bytes()
}

// Runner executes commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// StartError reports that a command could not be started or waited on.
// It is distinct from a command that ran and exited non-zero.
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to execute %q: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the command, waits for it and captures its output.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("command name is empty")
	}

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = buildEnv(c)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Command: c.String(), Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		// Negative pid targets the whole process group.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return nil, fmt.Errorf("%s: cancelled: %w", c.String(), ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &StartError{Command: c.String(), Err: err}
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// buildEnv returns the child environment. An isolated command gets a
// non-nil empty slice, which exec treats as "no variables at all".
func buildEnv(c Command) []string {
	if c.Isolated {
		env := make([]string, 0, len(c.Env))
		return append(env, c.Env...)
	}
	if len(c.Env) == 0 {
		return nil
	}
	return append(os.Environ(), c.Env...)
}
