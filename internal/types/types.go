package types

import (
	"fmt"
	"time"
)

// TestRecord is one test execution result within one build.
// A record with neither Package nor TestCase stands for "the whole build
// failed".
type TestRecord struct {
	Package  string `json:"package,omitempty"`
	TestCase string `json:"testCase,omitempty"`
	Passed   bool   `json:"passed"`
	Log      string `json:"log,omitempty"`
}

// IsBuildSentinel reports whether the record carries no test identity.
func (r TestRecord) IsBuildSentinel() bool {
	return r.Package == "" || r.TestCase == ""
}

// BuildInput is the unit of work for one reconciliation.
type BuildInput struct {
	Passes   []TestRecord `json:"passes"`
	Failures []TestRecord `json:"failures"`
	Commit   string       `json:"commit"`
	BuildURL string       `json:"buildURL"`
}

// All returns passes followed by failures.
func (b *BuildInput) All() []TestRecord {
	all := make([]TestRecord, 0, len(b.Passes)+len(b.Failures))
	all = append(all, b.Passes...)
	return append(all, b.Failures...)
}

// Validate checks that the build carries the fields every marker needs.
func (b *BuildInput) Validate() error {
	if b.Commit == "" {
		return fmt.Errorf("commit is required")
	}
	if b.BuildURL == "" {
		return fmt.Errorf("buildURL is required")
	}
	for i, f := range b.Failures {
		if f.Passed {
			return fmt.Errorf("failures[%d] is marked passed", i)
		}
	}
	for i, p := range b.Passes {
		if !p.Passed {
			return fmt.Errorf("passes[%d] is marked failed", i)
		}
	}
	return nil
}

// IssueState is the open/closed state of a tracker issue.
type IssueState string

const (
	StateOpen   IssueState = "open"
	StateClosed IssueState = "closed"
)

// IsValid checks if the state value is valid
func (s IssueState) IsValid() bool {
	switch s {
	case StateOpen, StateClosed:
		return true
	}
	return false
}

// Issue is the engine's view of a tracker issue.
type Issue struct {
	Number   int        `json:"number"`
	Title    string     `json:"title"`
	State    IssueState `json:"state"`
	Labels   []string   `json:"labels"`
	Body     string     `json:"body"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
	Locked   bool       `json:"locked"`
	// URL is the tracker's canonical API URL for the issue. It keys the
	// per-issue lock.
	URL string `json:"url"`
}

// IsOpen reports whether the issue is open.
func (i *Issue) IsOpen() bool {
	return i.State == StateOpen
}

// Comment is a single comment on an issue.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueUpdate carries the fields of an issue update. Nil fields are left
// untouched.
type IssueUpdate struct {
	Labels *[]string   `json:"labels,omitempty"`
	State  *IssueState `json:"state,omitempty"`
}

// CloseUpdate returns an update that closes an issue.
func CloseUpdate() IssueUpdate {
	s := StateClosed
	return IssueUpdate{State: &s}
}

// ReopenUpdate returns an update that sets labels and reopens an issue.
func ReopenUpdate(labels []string) IssueUpdate {
	s := StateOpen
	return IssueUpdate{Labels: &labels, State: &s}
}
