// Package event turns an inbound build notification into a BuildInput.
package event

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/steveyegge/flakewatch/internal/normalize"
	"github.com/steveyegge/flakewatch/internal/types"
)

// Placeholders used when a notification omits its commit or build URL.
const (
	UnknownCommit   = "[unknown commit]"
	UnknownBuildURL = "[unknown build URL]"
)

// ErrNoParser is returned for an XML report when no parser is configured.
var ErrNoParser = errors.New("no report parser configured for xunitXML")

// Event is one build notification.
type Event struct {
	// Repo is "owner/name".
	Repo     string `json:"repo"`
	Commit   string `json:"commit"`
	BuildURL string `json:"buildURL"`

	// XunitXML is a base64 encoded test report. It takes precedence over
	// everything else.
	XunitXML string `json:"xunitXML,omitempty"`

	// Results carries test records that were already parsed upstream.
	Results *Results `json:"results,omitempty"`

	// TestsFailed reports the outcome of the build as a whole when there is
	// no per-test data.
	TestsFailed *bool `json:"testsFailed,omitempty"`
}

// Results is the test-record shape consumed by the engine.
type Results struct {
	Passes   []types.TestRecord `json:"passes"`
	Failures []types.TestRecord `json:"failures"`
}

// ReportParser converts a raw test report into test records.
type ReportParser interface {
	Parse(report []byte) (*Results, error)
}

// Decode reads one JSON event.
func Decode(r io.Reader) (*Event, error) {
	var e Event
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &e, nil
}

// DecodeResults reads a JSON {passes, failures} document. The Passed flag
// of every record is set from the list it appears in.
func DecodeResults(r io.Reader) (*Results, error) {
	var res Results
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode test results: %w", err)
	}
	for i := range res.Passes {
		res.Passes[i].Passed = true
	}
	for i := range res.Failures {
		res.Failures[i].Passed = false
	}
	return &res, nil
}

// SplitRepo splits "owner/name".
func SplitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repo must be owner/name (got %q)", repo)
	}
	return owner, name, nil
}

// ToBuild converts the event into a BuildInput. It returns nil without an
// error when the event carries no test information at all. Records are
// de-duplicated by title, last occurrence winning.
func (e *Event) ToBuild(parser ReportParser) (*types.BuildInput, error) {
	var res *Results
	switch {
	case e.XunitXML != "":
		if parser == nil {
			return nil, ErrNoParser
		}
		report, err := base64.StdEncoding.DecodeString(e.XunitXML)
		if err != nil {
			return nil, fmt.Errorf("failed to decode xunitXML: %w", err)
		}
		res, err = parser.Parse(report)
		if err != nil {
			return nil, fmt.Errorf("failed to parse test report: %w", err)
		}
	case e.Results != nil:
		res = e.Results
	case e.TestsFailed != nil:
		// A record without package or test case stands for the whole build.
		if *e.TestsFailed {
			res = &Results{Failures: []types.TestRecord{{Passed: false}}}
		} else {
			res = &Results{Passes: []types.TestRecord{{Passed: true}}}
		}
	default:
		return nil, nil
	}

	build := &types.BuildInput{
		Passes:   normalize.DedupeRecords(res.Passes),
		Failures: normalize.DedupeRecords(res.Failures),
		Commit:   e.Commit,
		BuildURL: e.BuildURL,
	}
	if build.Commit == "" {
		build.Commit = UnknownCommit
	}
	if build.BuildURL == "" {
		build.BuildURL = UnknownBuildURL
	}
	return build, nil
}
