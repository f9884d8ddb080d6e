package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/nbiso/internal/notebook"
)

// CheckResult holds the findings of the check command.
type CheckResult struct {
	StalePatterns    []string                   `json:"stale_patterns"`
	MarkerViolations []notebook.MarkerViolation `json:"marker_violations"`
}

// OK reports whether nothing was found.
func (r CheckResult) OK() bool {
	return len(r.StalePatterns) == 0 && len(r.MarkerViolations) == 0
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check skip-list hygiene and unreleased-feature markers",
		Long: `Check the harness configuration against the repository.

Every skip and unreleased pattern must match at least one file, and every
unreleased notebook must contain the pinned pre-release install command and
the unreleased-features note.

Exit codes:
  0 - No findings
  1 - Stale patterns or missing markers
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	s, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	result := CheckResult{StalePatterns: []string{}, MarkerViolations: []notebook.MarkerViolation{}}

	stale, err := notebook.UnmatchedPatterns(os.DirFS(s.cfg.Root), s.cfg.SkipPatterns())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to check skip patterns", err)
	}
	result.StalePatterns = append(result.StalePatterns, stale...)

	// Missing unreleased notebooks are already reported as stale.
	var present []string
	for _, nb := range s.cfg.Unreleased.Notebooks {
		if !slices.Contains(stale, nb) {
			present = append(present, nb)
		}
	}
	violations, err := notebook.CheckMarkers(s.cfg.Root, present, s.cfg.MarkerPatterns())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to check unreleased markers", err)
	}
	result.MarkerViolations = append(result.MarkerViolations, violations...)

	if opts.Format == "json" {
		if err := s.out.Success(result); err != nil {
			return err
		}
	} else {
		writeCheckText(cmd, result)
	}

	if !result.OK() {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d stale pattern(s), %d marker violation(s)", len(result.StalePatterns), len(result.MarkerViolations)))
	}
	return nil
}

func writeCheckText(cmd *cobra.Command, r CheckResult) {
	w := cmd.OutOrStdout()
	if r.OK() {
		fmt.Fprintln(w, "✓ configuration is consistent with the repository")
		return
	}
	for _, p := range r.StalePatterns {
		fmt.Fprintf(w, "✗ pattern %q matches no file; remove it from the skip or unreleased list\n", p)
	}
	for _, v := range r.MarkerViolations {
		fmt.Fprintf(w, "✗ %s\n", v)
	}
}
