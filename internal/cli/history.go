package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nbiso/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DB       string
	Limit    int
	Session  string
	Notebook string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded sessions",
		Long: `Show sessions recorded by "nbiso run --db".

Without filters the most recent sessions are listed. --session lists the
runs of one session and --notebook lists the recent runs of one notebook.

Examples:
  nbiso history --db .nbiso/history.db
  nbiso history --db .nbiso/history.db --session 0190a0c4-...
  nbiso history --db .nbiso/history.db --notebook docs/simulate.ipynb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite history database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum entries (0 for all)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "list the runs of this session")
	cmd.Flags().StringVar(&opts.Notebook, "notebook", "", "list the runs of this notebook")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if opts.Session != "" && opts.Notebook != "" {
		return NewExitError(ExitCommandError, "--session and --notebook are mutually exclusive")
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer st.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	ctx := cmd.Context()

	switch {
	case opts.Session != "":
		if _, err := st.ReadSession(ctx, opts.Session); err != nil {
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		runs, err := st.ReadRuns(ctx, opts.Session)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		return writeRuns(opts.Format, out, runs)

	case opts.Notebook != "":
		runs, err := st.NotebookHistory(ctx, opts.Notebook, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read notebook history", err)
		}
		return writeRuns(opts.Format, out, runs)

	default:
		sessions, err := st.ListSessions(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		if opts.Format == "json" {
			return out.Success(sessions)
		}
		writeSessions(out.Writer, sessions)
		return nil
	}
}

func writeSessions(w io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	for _, s := range sessions {
		partition := s.Partition
		if partition == "" {
			partition = "-"
		}
		status := "unfinished"
		if s.Finished() {
			status = fmt.Sprintf("%d passed, %d failed, %d total", s.Passed, s.Failed, s.Total)
		}
		fmt.Fprintf(w, "%s  %s  %-7s  %-12s  %s\n",
			s.ID, s.StartedAt.UTC().Format(time.RFC3339), s.Scope, partition, status)
	}
}

func writeRuns(format string, out *OutputFormatter, runs []store.Run) error {
	if format == "json" {
		return out.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		mark := "✓"
		if !r.Passed {
			mark = "✗"
		}
		fmt.Fprintf(out.Writer, "%s %s [%s] session=%s exit=%d duration=%s\n",
			mark, r.Notebook, r.Partition, r.SessionID, r.ExitCode, r.Duration)
	}
	return nil
}
