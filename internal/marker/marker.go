// Package marker encodes and decodes the build trailer embedded in every
// issue body and comment the engine writes.
//
// The trailer is the engine's append-only history of build outcomes:
//
//	commit: <sha>
//	buildURL: <url>
//	status: passed|failed
//
// Changing this format breaks flaky detection on existing issues.
package marker

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/steveyegge/flakewatch/internal/types"
)

// Status is the outcome recorded in a trailer.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Marker is one decoded trailer.
type Marker struct {
	Commit   string
	BuildURL string
	Status   Status
}

var trailerRE = regexp.MustCompile(`commit: ([^\r\n]*?)[ \t]*\r?\nbuildURL: ([^\r\n]*?)[ \t]*\r?\nstatus: (passed|failed)`)

// Encode renders the trailer for a record, followed by its log in a
// collapsed block when there is one.
func Encode(r types.TestRecord, commit, buildURL string) string {
	status := StatusFailed
	if r.Passed {
		status = StatusPassed
	}
	var b strings.Builder
	fmt.Fprintf(&b, "commit: %s\nbuildURL: %s\nstatus: %s", commit, buildURL, status)
	if r.Log != "" {
		fmt.Fprintf(&b, "\n<details><summary>Test output</summary><br><pre>%s</pre></details>", r.Log)
	}
	return b.String()
}

// Decode returns every trailer found in text, in order.
func Decode(text string) []Marker {
	var markers []Marker
	for _, m := range trailerRE.FindAllStringSubmatch(text, -1) {
		markers = append(markers, Marker{Commit: m[1], BuildURL: m[2], Status: Status(m[3])})
	}
	return markers
}

// Find returns the first trailer in text for commit with the given status.
func Find(text, commit string, status Status) (Marker, bool) {
	for _, m := range Decode(text) {
		if m.Commit == commit && m.Status == status {
			return m, true
		}
	}
	return Marker{}, false
}

// CommentLister lists the comments of an issue.
type CommentLister interface {
	ListComments(ctx context.Context, number int) ([]*types.Comment, error)
}

// ContainsBuildFailure reports whether the issue already records a failure
// at commit, and the build URL of that failure. The body is checked before
// the comments are fetched.
func ContainsBuildFailure(ctx context.Context, lister CommentLister, issue *types.Issue, commit string) (bool, string, error) {
	if m, ok := Find(issue.Body, commit, StatusFailed); ok {
		return true, m.BuildURL, nil
	}
	comments, err := lister.ListComments(ctx, issue.Number)
	if err != nil {
		return false, "", fmt.Errorf("failed to list comments on #%d: %w", issue.Number, err)
	}
	for _, c := range comments {
		if m, ok := Find(c.Body, commit, StatusFailed); ok {
			return true, m.BuildURL, nil
		}
	}
	return false, "", nil
}
