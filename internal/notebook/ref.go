package notebook

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Ext is the notebook file extension.
const Ext = ".ipynb"

// Ref identifies a notebook by path.
type Ref struct {
	// Path is absolute.
	Path string `json:"path"`

	// Rel is relative to the repository root, slash separated.
	Rel string `json:"rel"`
}

// NewRef builds a Ref for path, which may be absolute or relative to root.
func NewRef(root, path string) (Ref, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Ref{}, fmt.Errorf("notebook %s: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Ref{}, fmt.Errorf("notebook %s is outside root %s", path, root)
	}
	return Ref{Path: path, Rel: filepath.ToSlash(rel)}, nil
}

func (r Ref) String() string {
	return r.Rel
}

// Base is the file name without the notebook extension.
func (r Ref) Base() string {
	return strings.TrimSuffix(filepath.Base(r.Path), Ext)
}

// RelDir is the slash separated directory of Rel ("" at the root).
func (r Ref) RelDir() string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(r.Rel)))
	if dir == "." {
		return ""
	}
	return dir
}

// IsNotebook reports whether path has the notebook extension.
func IsNotebook(path string) bool {
	return strings.HasSuffix(path, Ext)
}
