// Package matcher finds the tracker issue that belongs to a test.
package matcher

import (
	"cmp"
	"slices"

	"github.com/steveyegge/flakewatch/internal/labels"
	"github.com/steveyegge/flakewatch/internal/normalize"
	"github.com/steveyegge/flakewatch/internal/types"
)

// Compare orders issues that share a title, best first: open before closed,
// flaky before not flaky, most recently closed first (issues without a close
// time last), then lowest number. It is a total order and can be passed to
// slices.SortFunc.
func Compare(a, b *types.Issue) int {
	if a.IsOpen() != b.IsOpen() {
		if a.IsOpen() {
			return -1
		}
		return 1
	}
	if af, bf := labels.IsFlaky(a), labels.IsFlaky(b); af != bf {
		if af {
			return -1
		}
		return 1
	}
	switch {
	case a.ClosedAt != nil && b.ClosedAt != nil:
		if c := b.ClosedAt.Compare(*a.ClosedAt); c != 0 {
			return c
		}
	case a.ClosedAt != nil:
		return -1
	case b.ClosedAt != nil:
		return 1
	}
	return cmp.Compare(a.Number, b.Number)
}

// Best returns the best issue of a set according to Compare, or nil.
func Best(issues []*types.Issue) *types.Issue {
	if len(issues) == 0 {
		return nil
	}
	return slices.MinFunc(issues, Compare)
}

// WithTitle returns the issues whose title is exactly title.
func WithTitle(issues []*types.Issue, title string) []*types.Issue {
	var out []*types.Issue
	for _, issue := range issues {
		if issue.Title == title {
			out = append(out, issue)
		}
	}
	return out
}

// FindExisting returns the issue for record's test. An open issue is
// preferred. Otherwise the best closed issue is returned, except for the
// whole-build sentinel: unrelated build failures must not keep reviving one
// catch-all issue.
func FindExisting(issues []*types.Issue, record types.TestRecord) *types.Issue {
	return findExisting(issues, record, normalize.Title(record))
}

func findExisting(issues []*types.Issue, record types.TestRecord, title string) *types.Issue {
	matching := WithTitle(issues, title)
	for _, issue := range matching {
		if issue.IsOpen() {
			return issue
		}
	}
	if record.IsBuildSentinel() {
		return nil
	}
	return Best(matching)
}

// FindGroupIssue returns the open group issue for pkg. Closed group issues
// are never reused.
func FindGroupIssue(issues []*types.Issue, pkg string) *types.Issue {
	return findGroupIssue(issues, normalize.GroupTitle(pkg))
}

func findGroupIssue(issues []*types.Issue, title string) *types.Issue {
	for _, issue := range issues {
		if issue.Title == title && issue.IsOpen() {
			return issue
		}
	}
	return nil
}

// Titles derives issue titles from tests and packages.
type Titles interface {
	Title(r types.TestRecord) string
	GroupTitle(pkg string) string
}

// Matcher matches with the titles of its Titles, or the normalize package
// titles when Titles is nil.
type Matcher struct {
	Titles Titles
}

func (m Matcher) titles() Titles {
	if m.Titles == nil {
		return normalize.Normalizer{}
	}
	return m.Titles
}

// FindExisting implements reconcile.Matcher.
func (m Matcher) FindExisting(issues []*types.Issue, record types.TestRecord) *types.Issue {
	return findExisting(issues, record, m.titles().Title(record))
}

// FindGroupIssue implements reconcile.Matcher.
func (m Matcher) FindGroupIssue(issues []*types.Issue, pkg string) *types.Issue {
	return findGroupIssue(issues, m.titles().GroupTitle(pkg))
}
