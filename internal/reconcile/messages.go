package reconcile

import (
	"fmt"
	"strings"

	"github.com/steveyegge/flakewatch/internal/marker"
	"github.com/steveyegge/flakewatch/internal/types"
)

const newIssueMessage = "This test failed!\n\n" +
	"flakewatch comments here whenever it fails again. Add the `" + types.LabelQuiet + "` label to stop the comments; " +
	"the issue is still closed automatically once the test passes.\n\n---"

const flakyMessage = "This test looks flaky: it has both passed and failed.\n\n" +
	"The issue stays open and flakewatch stops commenting. A human needs to fix the test and close the issue.\n\n---"

const flakyAgainMessage = "This flaky test failed again, so the issue was reopened.\n\n" +
	"A human needs to close it again.\n\n---"

const groupedMessage = "Many tests failed at the same time in this package.\n\n" +
	"* This issue is closed once the package has no failures and at least one pass.\n" +
	"* No new issues are filed for this package while this issue is open.\n" +
	"* Issues that already exist for single tests are closed when those tests pass.\n\n"

// newIssueBody is the body of a per-test issue. A note replaces the
// standard introduction.
func newIssueBody(r types.TestRecord, commit, buildURL, note string) string {
	intro := newIssueMessage + "\n\n"
	if note != "" {
		intro = note + "\n\n----\n\n"
	}
	return intro + marker.Encode(r, commit, buildURL)
}

func lockedNote(number int) string {
	return fmt.Sprintf("Note: #%d was also for this test, but it is locked", number)
}

func closedLongAgoNote(number int) string {
	return fmt.Sprintf("Note: #%d was also for this test, but it was closed more than %d days ago. "+
		"It was left closed instead of being marked flaky.", number, reopenWindowDays)
}

// groupIssueBody lists the failed tests of a package, with the number of
// an existing per-test issue where there is one.
func groupIssueBody(group types.TestRecord, failures []types.TestRecord, existing func(types.TestRecord) *types.Issue, commit, buildURL string) string {
	var b strings.Builder
	b.WriteString(groupedMessage)
	b.WriteString("Here are the tests that failed:\n")
	for _, f := range failures {
		if f.TestCase == "" {
			continue
		}
		b.WriteString("* " + f.TestCase)
		if issue := existing(f); issue != nil {
			fmt.Fprintf(&b, " (#%d)", issue.Number)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n\n-----\n")
	b.WriteString(marker.Encode(group, commit, buildURL))
	return b.String()
}

func groupComment(count int, group types.TestRecord, commit, buildURL string) string {
	noun := "tests"
	if count == 1 {
		noun = "test"
	}
	return fmt.Sprintf("%d %s failed in this package for commit %s (%s).\n\n-----\n%s",
		count, noun, commit, buildURL, marker.Encode(group, commit, buildURL))
}

func passedComment(commit, buildURL string) string {
	return fmt.Sprintf("Test passed for commit %s (%s)! Closing this issue.", commit, buildURL)
}

func sameCommitReason(commit, passURL, failURL string) string {
	return fmt.Sprintf("When run at the same commit (%s), this test passed in one build (%s) and failed in another build (%s).",
		commit, passURL, failURL)
}
