package harness

import (
	"fmt"
	"time"

	"github.com/roach88/nbiso/internal/executor"
	"github.com/roach88/nbiso/internal/notebook"
)

// Scope selects which notebooks a session collects.
type Scope string

const (
	ScopeAll     Scope = "all"
	ScopeChanged Scope = "changed"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeAll, ScopeChanged:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope %q (want %q or %q)", s, ScopeAll, ScopeChanged)
	}
}

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Case notebook.TestCase `json:"case"`

	// Exec is nil when the case failed before the notebook ran.
	Exec *executor.Result `json:"exec,omitempty"`

	// Message is the failure message. Empty when the case passed.
	Message string `json:"message,omitempty"`

	ArtifactKey string `json:"artifact_key,omitempty"`
}

// Passed reports whether the notebook ran and exited zero.
func (r *CaseResult) Passed() bool {
	return r.Message == "" && r.Exec != nil && r.Exec.Passed()
}

// Summary is the outcome of a session.
type Summary struct {
	SessionID string        `json:"session_id"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`
	Results   []*CaseResult `json:"results"`
}

// NewSummary creates an empty summary.
func NewSummary(sessionID string) *Summary {
	return &Summary{
		SessionID: sessionID,
		Results:   []*CaseResult{},
	}
}

// Add appends a result and updates the counters.
func (s *Summary) Add(r *CaseResult) {
	s.Results = append(s.Results, r)
	s.Total++
	if r.Passed() {
		s.Passed++
	} else {
		s.Failed++
	}
}

// OK reports whether every case passed.
func (s *Summary) OK() bool {
	return s.Failed == 0
}
