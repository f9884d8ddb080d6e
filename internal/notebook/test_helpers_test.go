package notebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// makeTree creates files (relative, slash separated) under a temp root.
func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func rels(refs []Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Rel
	}
	return out
}

func refsFor(t *testing.T, root string, relPaths ...string) []Ref {
	t.Helper()
	out := make([]Ref, len(relPaths))
	for i, rel := range relPaths {
		ref, err := NewRef(root, rel)
		require.NoError(t, err)
		out[i] = ref
	}
	return out
}
