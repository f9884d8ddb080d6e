package harness

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/nbiso/internal/config"
)

// Report markers.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// FailureMessage explains a failed notebook and how to exclude it while a
// needed feature is unreleased.
func FailureMessage(cfg *config.Config, file, outPath string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Notebook failure: %s, please see %s for the output notebook "+
		"(in Github Actions, you can download it from the workflow artifact '%s'). \n",
		file, outPath, cfg.ArtifactName)

	b.WriteString("If this is a new failure in this notebook due to a new change, " +
		"that is only available in main for now, consider ")
	if pinned, plain := cfg.InstallHint(); pinned != "" {
		fmt.Fprintf(&b, "adding `%s` instead of `%s` to this notebook, and exclude it from %s.",
			pinned, plain, configName(cfg))
	} else {
		fmt.Fprintf(&b, "excluding it from %s.", configName(cfg))
	}
	return b.String()
}

// ErrorMessage describes a case that failed before or around execution.
func ErrorMessage(file string, err error) string {
	return fmt.Sprintf("Notebook error: %s: %v", file, err)
}

func configName(cfg *config.Config) string {
	if rel := cfg.RelPath(); rel != "" {
		return rel
	}
	return "the harness configuration"
}

// WriteCase writes the report of one case: a pass line, or a fail line
// followed by the captured output and the failure message.
func WriteCase(w io.Writer, r *CaseResult) error {
	label := fmt.Sprintf("%s [%s]", r.Case.Notebook.Rel, r.Case.Partition)
	if r.Passed() {
		_, err := fmt.Fprintf(w, "%s %s\n", PassMark, label)
		return err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s\n", FailMark, label)
	if r.Exec != nil {
		writeSection(&b, "stdout", r.Exec.Stdout)
		writeSection(&b, "stderr", r.Exec.Stderr)
	}
	b.WriteString(r.Message)
	b.WriteString("\n")
	_, err := w.Write(b.Bytes())
	return err
}

func writeSection(b *bytes.Buffer, name string, data []byte) {
	if len(data) == 0 {
		return
	}
	fmt.Fprintf(b, "--- %s ---\n", name)
	b.Write(data)
	if !bytes.HasSuffix(data, []byte("\n")) {
		b.WriteByte('\n')
	}
}

// WriteSummary writes the closing summary line.
func WriteSummary(w io.Writer, s *Summary) error {
	_, err := fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
	return err
}
