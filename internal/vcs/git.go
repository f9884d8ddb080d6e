package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/nbiso/internal/shell"
)

// ErrNoBaseRevision is returned when no candidate reference names a commit.
var ErrNoBaseRevision = errors.New("can't find a base revision to compare the files with")

// Git runs git in a repository.
type Git struct {
	Runner shell.Runner
	Root   string
}

// FindBaseRevision returns the first candidate whose object type is commit.
// Candidates that git cannot resolve, or that fail to run, are skipped.
func (g *Git) FindBaseRevision(ctx context.Context, candidates []string) (string, error) {
	var tried []string
	for _, rev := range candidates {
		res, err := g.git(ctx, "cat-file", "-t", rev)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			tried = append(tried, fmt.Sprintf("%s (%v)", rev, err))
			continue
		}
		if string(res.Stdout) == "commit\n" {
			return rev, nil
		}
		tried = append(tried, rev)
	}
	return "", fmt.Errorf("%w (tried %s)", ErrNoBaseRevision, strings.Join(tried, ", "))
}

// ChangedFiles lists paths, relative to the root, that differ from the merge
// base with rev. Deleted files are excluded. When the root is below the top
// of the work tree, only changes inside the root are listed.
func (g *Git) ChangedFiles(ctx context.Context, rev string) ([]string, error) {
	res, err := g.git(ctx, "diff", "--merge-base", "--diff-filter=d", "--name-only", "--relative", rev)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git diff against %s exited %d: %s",
			rev, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}

	var files []string
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (g *Git) git(ctx context.Context, args ...string) (*shell.Result, error) {
	return g.Runner.Run(ctx, shell.Command{Name: "git", Args: args, Dir: g.Root})
}
