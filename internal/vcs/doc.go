// Package vcs decides which notebooks changed relative to a base revision.
//
// The Selector resolves the first existing candidate reference (by default
// upstream/main, origin/main, main) and diffs the working tree against its
// merge base. Only notebooks in the diff are selected, unless a changed file
// matches an escalation pattern (the harness config, dependency manifests),
// in which case every notebook is selected.
//
// Collection must not fail in shallow clones, so an unresolvable base
// revision is logged as a warning and yields an empty selection.
package vcs
