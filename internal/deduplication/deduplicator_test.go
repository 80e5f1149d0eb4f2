package deduplication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/flakewatch/internal/lock"
	"github.com/steveyegge/flakewatch/internal/tracker/trackertest"
	"github.com/steveyegge/flakewatch/internal/types"
)

const title = "pkg: TestA failed"

func buildFor(records ...types.TestRecord) *types.BuildInput {
	b := &types.BuildInput{Commit: "abc", BuildURL: "https://ci/1"}
	for _, r := range records {
		if r.Passed {
			b.Passes = append(b.Passes, r)
		} else {
			b.Failures = append(b.Failures, r)
		}
	}
	return b
}

func openIssue(n int, title string, labels ...string) *types.Issue {
	return &types.Issue{Number: n, Title: title, State: types.StateOpen, Labels: append([]string{types.LabelIssue}, labels...)}
}

func newTestDeduplicator(fake *trackertest.Fake) *Deduplicator {
	return New(fake, lock.NewLocal(time.Second), nil)
}

func list(t *testing.T, fake *trackertest.Fake) []*types.Issue {
	t.Helper()
	issues, err := fake.ListIssues(context.Background(), types.LabelIssue)
	require.NoError(t, err)
	return issues
}

func TestDeduplicateConverges(t *testing.T) {
	fake := trackertest.New()
	fake.Add(openIssue(5, title))
	fake.Add(openIssue(2, title))
	fake.Add(openIssue(9, title))
	build := buildFor(types.TestRecord{Package: "pkg", TestCase: "TestA", Passed: true})
	d := newTestDeduplicator(fake)

	result, err := d.Deduplicate(context.Background(), build, list(t, fake))
	require.NoError(t, err)
	assert.True(t, result.Modified())
	assert.Equal(t, 1, result.Groups)
	require.Len(t, result.Closed, 2)
	assert.Empty(t, result.Errors)

	assert.True(t, fake.Issue(2).IsOpen())
	for _, n := range []int{5, 9} {
		assert.Equal(t, types.StateClosed, fake.Issue(n).State)
		assert.Equal(t, []string{"Closing as a duplicate of #2"}, fake.Comments(n))
	}

	// Running again changes nothing.
	before := len(fake.Calls())
	result, err = d.Deduplicate(context.Background(), build, list(t, fake))
	require.NoError(t, err)
	assert.False(t, result.Modified())
	assert.Len(t, fake.Calls(), before)
}

func TestDeduplicateKeepsFlaky(t *testing.T) {
	fake := trackertest.New()
	fake.Add(openIssue(1, title))
	fake.Add(openIssue(4, title, types.LabelFlaky))
	build := buildFor(types.TestRecord{Package: "pkg", TestCase: "TestA"})

	_, err := newTestDeduplicator(fake).Deduplicate(context.Background(), build, list(t, fake))
	require.NoError(t, err)
	assert.True(t, fake.Issue(4).IsOpen())
	assert.Equal(t, types.StateClosed, fake.Issue(1).State)
	assert.Equal(t, []string{"Closing as a duplicate of #4"}, fake.Comments(1))
}

func TestDeduplicateIgnoresTestsNotInBuild(t *testing.T) {
	fake := trackertest.New()
	fake.Add(openIssue(1, "other: TestB failed"))
	fake.Add(openIssue(2, "other: TestB failed"))
	build := buildFor(types.TestRecord{Package: "pkg", TestCase: "TestA", Passed: true})

	result, err := newTestDeduplicator(fake).Deduplicate(context.Background(), build, list(t, fake))
	require.NoError(t, err)
	assert.False(t, result.Modified())
	assert.Empty(t, fake.Calls())
}

func TestDeduplicateIgnoresClosedIssues(t *testing.T) {
	fake := trackertest.New()
	fake.Add(openIssue(1, title))
	closed := openIssue(2, title)
	closed.State = types.StateClosed
	fake.Add(closed)
	build := buildFor(types.TestRecord{Package: "pkg", TestCase: "TestA"})

	result, err := newTestDeduplicator(fake).Deduplicate(context.Background(), build, list(t, fake))
	require.NoError(t, err)
	assert.False(t, result.Modified())
	assert.Empty(t, fake.Calls())
}

func TestDeduplicateSkipsDuplicateClosedMeanwhile(t *testing.T) {
	fake := trackertest.New()
	fake.Add(openIssue(1, title))
	fake.Add(openIssue(2, title))
	build := buildFor(types.TestRecord{Package: "pkg", TestCase: "TestA"})
	snapshot := list(t, fake)

	// Another run closes #2 after our snapshot was taken.
	require.NoError(t, fake.UpdateIssue(context.Background(), 2, types.CloseUpdate()))
	before := len(fake.Calls())

	result, err := newTestDeduplicator(fake).Deduplicate(context.Background(), build, snapshot)
	require.NoError(t, err)
	assert.True(t, result.Modified())
	assert.Equal(t, []int{2}, result.Skipped)
	assert.Empty(t, result.Closed)
	assert.Len(t, fake.Calls(), before)
}

func TestDeduplicateCollectsErrors(t *testing.T) {
	fake := trackertest.New()
	fake.Add(openIssue(1, title))
	fake.Add(openIssue(2, title))
	fake.Add(openIssue(3, title))
	fake.FailOn("comment", 2, errors.New("rate limited"))
	build := buildFor(types.TestRecord{Package: "pkg", TestCase: "TestA"})

	result, err := newTestDeduplicator(fake).Deduplicate(context.Background(), build, list(t, fake))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.ErrorContains(t, result.Errors[0], "#2")
	assert.True(t, fake.Issue(2).IsOpen())
	assert.Equal(t, types.StateClosed, fake.Issue(3).State)
}

func TestGroupsOrdering(t *testing.T) {
	now := time.Now()
	older := now.Add(-time.Hour)
	issues := []*types.Issue{
		openIssue(7, "b: T failed"),
		openIssue(3, "b: T failed"),
		openIssue(8, "a: T failed"),
		openIssue(6, "a: T failed"),
		{Number: 1, Title: "a: T failed", State: types.StateClosed, ClosedAt: &older},
	}
	build := buildFor(types.TestRecord{Package: "a", TestCase: "T"}, types.TestRecord{Package: "b", TestCase: "T"})

	groups := Groups(build, issues)
	require.Len(t, groups, 2)
	assert.Equal(t, 3, groups[0][0].Number)
	assert.Equal(t, 7, groups[0][1].Number)
	assert.Equal(t, 6, groups[1][0].Number)
	assert.Len(t, groups[1], 2)
}

func TestGroupsByCustomTitle(t *testing.T) {
	issues := []*types.Issue{
		openIssue(1, "a: T failed"),
		openIssue(2, "a: T failed"),
		openIssue(3, "custom a.T"),
		openIssue(4, "custom a.T"),
	}
	build := buildFor(types.TestRecord{Package: "a", TestCase: "T"})
	custom := func(r types.TestRecord) string { return "custom " + r.Package + "." + r.TestCase }

	groups := GroupsBy(build, issues, custom)
	require.Len(t, groups, 1)
	assert.Equal(t, 3, groups[0][0].Number)
	assert.Equal(t, 4, groups[0][1].Number)

	groups = Groups(build, issues)
	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0][0].Number)
}
