package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/harness"
	"github.com/roach88/nbiso/internal/logging"
	"github.com/roach88/nbiso/internal/notebook"
)

// session is the per-command state shared by every subcommand.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	out    *OutputFormatter
}

func (o *RootOptions) setup(cmd *cobra.Command) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger, err := o.newLogger(cmd)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	return &session{
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    o.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   o.Verbose,
		},
	}, nil
}

// newLogger logs to the process stderr with the production configuration,
// or to the command's error writer when it was redirected.
func (o *RootOptions) newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	if w := cmd.ErrOrStderr(); w != os.Stderr {
		return logging.NewForWriter(w, o.Verbose), nil
	}
	return logging.New(o.Verbose)
}

// loadConfig resolves the root and reads the explicit or discovered config
// file. Without a file the defaults apply, still overlaid by the environment.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	root := o.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	path := o.ConfigPath
	if path == "" {
		path = config.Discover(root)
	}
	if path == "" {
		cfg := config.New(root)
		if err := cfg.ApplyEnv(o.lookupEnv()); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.LoadWithEnv(path, root, o.lookupEnv())
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// collectFlags are shared by list and run.
type collectFlags struct {
	Scope      string
	Partition  string
	Partitions int
}

func (f *collectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Scope, "scope", string(harness.ScopeAll), "notebooks to collect (all|changed)")
	cmd.Flags().StringVarP(&f.Partition, "partition", "k", "", "only this partition (partition-<i> or <i>)")
	cmd.Flags().IntVar(&f.Partitions, "partitions", 0, "number of partitions (overrides NOTEBOOK_PARTITIONS and the config)")
}

// apply folds the flags into cfg and returns the validated scope and label.
func (f *collectFlags) apply(cfg *config.Config) (harness.Scope, string, error) {
	if f.Partitions != 0 {
		cfg.Partitions = f.Partitions
	}
	scope, err := harness.ParseScope(f.Scope)
	if err != nil {
		return "", "", WrapExitError(ExitCommandError, "invalid --scope", err)
	}
	if err := cfg.Validate(); err != nil {
		return "", "", WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	label, err := notebook.ParsePartitionLabel(f.Partition, cfg.Partitions)
	if err != nil {
		return "", "", WrapExitError(ExitCommandError, "invalid --partition", err)
	}
	return scope, label, nil
}
