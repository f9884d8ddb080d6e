package notebook

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ListAll returns every notebook under root, sorted by relative path.
// Hidden directories and the directories named in prune (relative to root)
// are not descended into.
func ListAll(root string, prune []string) ([]Ref, error) {
	pruned := make(map[string]bool, len(prune))
	for _, p := range prune {
		pruned[filepath.Clean(filepath.Join(root, p))] = true
	}

	var refs []Ref
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || pruned[path]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsNotebook(path) {
			return nil
		}
		ref, err := NewRef(root, path)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notebooks in %s: %w", root, err)
	}

	SortRefs(refs)
	return refs, nil
}

// SortRefs orders refs by relative path.
func SortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Rel < refs[j].Rel })
}

// Filter returns refs minus those whose relative path matches any pattern.
// Order is preserved.
func Filter(refs []Ref, patterns []string) ([]Ref, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid skip pattern %q", p)
		}
	}

	out := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		if !MatchesAny(ref.Rel, patterns) {
			out = append(out, ref)
		}
	}
	return out, nil
}

// MatchesAny reports whether the slash separated relative path matches any
// pattern. Invalid patterns never match.
func MatchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// UnmatchedPatterns returns the patterns, in input order, that match no file
// or directory under root. A non-empty result means the skip list carries
// stale entries.
func UnmatchedPatterns(fsys fs.FS, patterns []string) ([]string, error) {
	var stale []string
	for _, p := range patterns {
		matches, err := doublestar.Glob(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			stale = append(stale, p)
		}
	}
	return stale, nil
}
