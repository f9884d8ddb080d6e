package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nbiso/internal/harness"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	collect collectFlags
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the test cases a run would execute",
		Long: `List the collected test cases without running them.

Each line is the partition label and the notebook path relative to the root.
Skipped and unreleased notebooks are not listed.

Examples:
  nbiso list
  nbiso list --scope changed
  nbiso list --partitions 4 -k partition-2
  nbiso list --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}
	opts.collect.register(cmd)

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	s, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	scope, label, err := opts.collect.apply(s.cfg)
	if err != nil {
		return err
	}

	h, err := harness.New(harness.Options{
		Config:      s.cfg,
		Logger:      s.logger,
		Runner:      opts.Runner,
		Provisioner: opts.Provisioner,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create harness", err)
	}

	plan, err := h.Collect(cmd.Context(), scope, label)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect notebooks", err)
	}

	if opts.Format == "json" {
		return s.out.Success(plan)
	}
	w := cmd.OutOrStdout()
	for _, c := range plan.Cases {
		fmt.Fprintf(w, "%s\t%s\n", c.Partition, c.Notebook.Rel)
	}
	return nil
}
