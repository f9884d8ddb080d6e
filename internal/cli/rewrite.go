package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/nbiso/internal/notebook"
)

// RewriteOptions holds flags for the rewrite command.
type RewriteOptions struct {
	*RootOptions
	TmpDir string
}

// RewriteResult is the JSON payload of the rewrite command.
type RewriteResult struct {
	Notebook  string `json:"notebook"`
	Path      string `json:"path"`
	Rewritten bool   `json:"rewritten"`
}

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RewriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rewrite <notebook>",
		Short: "Apply a notebook's substitution rules",
		Long: `Apply the rules of the notebook's sibling substitution file and print
the path of the rewritten copy. Without a substitution file the notebook's
own path is printed and nothing is written.

Each rule line has the form "pattern->replacement".

Examples:
  nbiso rewrite docs/simulate.ipynb
  nbiso rewrite docs/simulate.ipynb --tmp-dir /tmp/nb`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.TmpDir, "tmp-dir", "", "directory for the rewritten copy (default: system temp)")

	return cmd
}

func runRewrite(opts *RewriteOptions, path string, cmd *cobra.Command) error {
	s, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid notebook path", err)
	}
	if !notebook.IsNotebook(abs) {
		return NewExitError(ExitCommandError, fmt.Sprintf("not a notebook: %s", path))
	}
	if _, err := os.Stat(abs); err != nil {
		return WrapExitError(ExitCommandError, "notebook not found", err)
	}

	out, rewritten, err := notebook.Rewrite(abs, s.cfg.SubstitutionExt, opts.TmpDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to rewrite notebook", err)
	}
	s.out.VerboseLog("rules: %s (applied: %t)", notebook.RulesPath(abs, s.cfg.SubstitutionExt), rewritten)

	if opts.Format == "json" {
		return s.out.Success(RewriteResult{Notebook: abs, Path: out, Rewritten: rewritten})
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
