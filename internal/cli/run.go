package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/nbiso/internal/artifacts"
	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/harness"
	"github.com/roach88/nbiso/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	collect collectFlags
	Jobs    int
	Cleanup string
	DB      string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute notebooks in isolated environments",
		Long: `Execute every collected notebook in its own cloned environment.

Failed notebooks print their captured output and a failure message naming
the output notebook. Executed notebooks and logs are written under the
configured output directory.

Exit codes:
  0 - All notebooks passed
  1 - One or more notebooks failed
  2 - Command error (invalid config, interrupted run, etc.)

Examples:
  nbiso run
  nbiso run --scope changed --jobs 4
  nbiso run -k partition-1 --partitions 4
  nbiso run --cleanup always --db .nbiso/history.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, cmd)
		},
	}
	opts.collect.register(cmd)
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "notebooks run concurrently")
	cmd.Flags().StringVar(&opts.Cleanup, "cleanup", "", "when to remove temporaries (on-success|always|never)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "record the session in this SQLite history database")

	return cmd
}

func runRun(opts *RunOptions, cmd *cobra.Command) error {
	s, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if opts.Cleanup != "" {
		s.cfg.Cleanup = config.CleanupPolicy(opts.Cleanup)
	}
	scope, label, err := opts.collect.apply(s.cfg)
	if err != nil {
		return err
	}
	if opts.Jobs < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--jobs must be >= 1, got %d", opts.Jobs))
	}

	ctx := cmd.Context()
	hopts := harness.Options{
		Config:      s.cfg,
		Logger:      s.logger,
		Runner:      opts.Runner,
		Provisioner: opts.Provisioner,
		Report:      cmd.OutOrStdout(),
	}
	if opts.Format == "json" {
		// Keep stdout a single JSON document.
		hopts.Report = cmd.ErrOrStderr()
	}

	if opts.DB != "" {
		st, err := store.Open(opts.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		defer st.Close()
		hopts.Recorder = st
	}

	if s.cfg.Artifacts.Enabled() {
		u, err := artifacts.NewMinIOUploader(s.cfg.Artifacts)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create artifact uploader", err)
		}
		if err := u.EnsureBucket(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to prepare artifact bucket", err)
		}
		hopts.Uploader = u
	}

	h, err := harness.New(hopts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create harness", err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			s.logger.Warn("failed to remove base environments", zap.Error(err))
		}
	}()

	plan, err := h.Collect(ctx, scope, label)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect notebooks", err)
	}

	summary, runErr := h.Run(ctx, plan, opts.Jobs)
	if err := writeSummary(opts.Format, s.out, cmd.OutOrStdout(), summary); err != nil {
		return err
	}

	if runErr != nil {
		return WrapExitError(ExitCommandError, "run interrupted", runErr)
	}
	if !summary.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d notebook(s) failed", summary.Failed, summary.Total))
	}
	return nil
}

func writeSummary(format string, out *OutputFormatter, w io.Writer, summary *harness.Summary) error {
	if format == "json" {
		return out.Success(summary)
	}
	return harness.WriteSummary(w, summary)
}
