package harness

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nbiso/internal/config"
	"github.com/roach88/nbiso/internal/executor"
	"github.com/roach88/nbiso/internal/notebook"
)

func TestFailureMessage_WithoutPackage(t *testing.T) {
	cfg := config.New("/repo")
	cfg.ArtifactName = "outputs"

	msg := FailureMessage(cfg, "docs/a.ipynb", "/repo/out/docs/a.out.ipynb")
	assert.Equal(t,
		"Notebook failure: docs/a.ipynb, please see /repo/out/docs/a.out.ipynb for the output notebook "+
			"(in Github Actions, you can download it from the workflow artifact 'outputs'). \n"+
			"If this is a new failure in this notebook due to a new change, that is only available in main "+
			"for now, consider excluding it from the harness configuration.",
		msg)
}

func TestWriteCase_Pass(t *testing.T) {
	ref, err := notebook.NewRef("/repo", "intro.ipynb")
	require.NoError(t, err)
	r := &CaseResult{
		Case: notebook.TestCase{Partition: "partition-3", Notebook: ref},
		Exec: &executor.Result{Stdout: []byte("noise")},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCase(&buf, r))
	assert.Equal(t, "✓ intro.ipynb [partition-3]\n", buf.String())
}

func TestWriteCase_ErrorWithoutExecution(t *testing.T) {
	ref, err := notebook.NewRef("/repo", "intro.ipynb")
	require.NoError(t, err)
	r := &CaseResult{
		Case:    notebook.TestCase{Partition: "partition-0", Notebook: ref},
		Message: "Notebook error: intro.ipynb: boom",
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCase(&buf, r))
	assert.Equal(t, "✗ intro.ipynb [partition-0]\nNotebook error: intro.ipynb: boom\n", buf.String())
	assert.False(t, r.Passed())
}

func TestSummary_Counts(t *testing.T) {
	s := NewSummary("s1")
	s.Add(&CaseResult{Exec: &executor.Result{}})
	s.Add(&CaseResult{Exec: &executor.Result{ExitCode: 2}})
	s.Add(&CaseResult{Message: "Notebook error: x"})

	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 3, s.Total)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	assert.Equal(t, "Test Summary: 1 passed, 2 failed, 3 total\n", buf.String())
}
