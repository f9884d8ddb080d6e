package notebook

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// MarkerViolation names a notebook that lacks a required pattern.
type MarkerViolation struct {
	Notebook string `json:"notebook"`
	Pattern  string `json:"pattern"`
}

func (v MarkerViolation) String() string {
	return fmt.Sprintf("%s is marked as depending on unreleased features, however it contains no line matching:\n%s",
		v.Notebook, v.Pattern)
}

// CheckMarkers verifies every notebook (relative to root) matches every
// pattern. Notebook text is NFC normalised before matching so that
// composed and decomposed forms of the same sentence compare equal.
func CheckMarkers(root string, notebooks, patterns []string) ([]MarkerViolation, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("marker pattern %q: %w", p, err)
		}
		compiled[i] = re
	}

	var violations []MarkerViolation
	for _, nb := range notebooks {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(nb)))
		if err != nil {
			return nil, fmt.Errorf("read notebook %s: %w", nb, err)
		}
		content := norm.NFC.String(string(data))
		for i, re := range compiled {
			if !re.MatchString(content) {
				violations = append(violations, MarkerViolation{Notebook: nb, Pattern: patterns[i]})
			}
		}
	}
	return violations, nil
}
