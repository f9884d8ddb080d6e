package vcs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/nbiso/internal/notebook"
)

// Selector computes the changed-notebook scope.
type Selector struct {
	Git *Git

	// Candidates are tried in order as the diff base.
	Candidates []string

	// Escalate holds globs; a changed file matching one selects all notebooks.
	Escalate []string

	// ListAll returns every notebook, used on escalation.
	ListAll func() ([]notebook.Ref, error)

	Logger *zap.Logger
}

// ChangedNotebooks returns the notebooks changed since the base revision.
//
// A missing base revision or a failing diff is logged and yields an empty
// list with a nil error. Only a failing ListAll during escalation is
// returned as an error.
func (s *Selector) ChangedNotebooks(ctx context.Context) ([]notebook.Ref, error) {
	logger := s.logger()

	rev, err := s.Git.FindBaseRevision(ctx, s.Candidates)
	if err != nil {
		logger.Warn("no changed notebooks are tested (expected without git history)", zap.Error(err))
		return []notebook.Ref{}, nil
	}

	files, err := s.Git.ChangedFiles(ctx, rev)
	if err != nil {
		logger.Warn("no changed notebooks are tested: diff failed",
			zap.String("base", rev), zap.Error(err))
		return []notebook.Ref{}, nil
	}
	logger.Debug("changed files", zap.String("base", rev), zap.Int("count", len(files)))

	for _, f := range files {
		if notebook.MatchesAny(f, s.Escalate) {
			logger.Info("harness change detected, selecting all notebooks", zap.String("file", f))
			all, err := s.ListAll()
			if err != nil {
				return nil, fmt.Errorf("list all notebooks: %w", err)
			}
			return all, nil
		}
	}

	refs := []notebook.Ref{}
	for _, f := range files {
		if !notebook.IsNotebook(f) {
			continue
		}
		ref, err := notebook.NewRef(s.Git.Root, f)
		if err != nil {
			logger.Warn("ignoring changed path", zap.String("file", f), zap.Error(err))
			continue
		}
		refs = append(refs, ref)
	}
	notebook.SortRefs(refs)
	return refs, nil
}

func (s *Selector) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
