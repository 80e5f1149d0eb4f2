package marker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/flakewatch/internal/types"
)

type stubLister struct {
	comments []*types.Comment
	err      error
	calls    int
}

func (s *stubLister) ListComments(ctx context.Context, number int) ([]*types.Comment, error) {
	s.calls++
	return s.comments, s.err
}

func TestEncode(t *testing.T) {
	failed := Encode(types.TestRecord{Package: "p", TestCase: "T"}, "abc", "http://ci/1")
	assert.Equal(t, "commit: abc\nbuildURL: http://ci/1\nstatus: failed", failed)

	passed := Encode(types.TestRecord{Package: "p", TestCase: "T", Passed: true}, "abc", "http://ci/1")
	assert.Equal(t, "commit: abc\nbuildURL: http://ci/1\nstatus: passed", passed)

	withLog := Encode(types.TestRecord{Package: "p", TestCase: "T", Log: "boom"}, "abc", "http://ci/1")
	assert.Contains(t, withLog, "status: failed\n<details><summary>Test output</summary><br><pre>boom</pre></details>")
}

func TestDecodeRoundTrip(t *testing.T) {
	text := "Some preamble.\n\n" +
		Encode(types.TestRecord{Passed: true}, "c1", "[Build](http://ci/1)") +
		"\n\ntrailing words\r\n" +
		"commit: c2\r\nbuildURL: http://ci/2\r\nstatus: failed\r\n"

	markers := Decode(text)

	require.Len(t, markers, 2)
	assert.Equal(t, Marker{Commit: "c1", BuildURL: "[Build](http://ci/1)", Status: StatusPassed}, markers[0])
	assert.Equal(t, Marker{Commit: "c2", BuildURL: "http://ci/2", Status: StatusFailed}, markers[1])
}

func TestFind(t *testing.T) {
	text := "commit: c1\nbuildURL: u1\nstatus: passed\n\ncommit: c2\nbuildURL: u2\nstatus: failed"

	_, ok := Find(text, "c1", StatusFailed)
	assert.False(t, ok, "c1 only passed")

	m, ok := Find(text, "c2", StatusFailed)
	require.True(t, ok)
	assert.Equal(t, "u2", m.BuildURL)
}

func TestContainsBuildFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("body match skips comments", func(t *testing.T) {
		lister := &stubLister{}
		issue := &types.Issue{Number: 1, Body: "hello\n\ncommit: abc\nbuildURL: http://ci/1\nstatus: failed"}

		found, url, err := ContainsBuildFailure(ctx, lister, issue, "abc")

		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "http://ci/1", url)
		assert.Zero(t, lister.calls)
	})

	t.Run("comment match", func(t *testing.T) {
		lister := &stubLister{comments: []*types.Comment{
			{Body: "commit: abc\nbuildURL: http://ci/1\nstatus: passed"},
			{Body: "commit: abc\nbuildURL: http://ci/2\nstatus: failed"},
			{Body: "commit: abc\nbuildURL: http://ci/3\nstatus: failed"},
		}}
		issue := &types.Issue{Number: 1, Body: "commit: other\nbuildURL: x\nstatus: failed"}

		found, url, err := ContainsBuildFailure(ctx, lister, issue, "abc")

		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "http://ci/2", url, "first match wins")
	})

	t.Run("no match", func(t *testing.T) {
		lister := &stubLister{comments: []*types.Comment{{Body: "Closing as a duplicate of #2"}}}
		issue := &types.Issue{Number: 1, Body: "commit: abc\nbuildURL: x\nstatus: passed"}

		found, url, err := ContainsBuildFailure(ctx, lister, issue, "abc")

		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, url)
	})

	t.Run("lister error", func(t *testing.T) {
		lister := &stubLister{err: errors.New("boom")}

		_, _, err := ContainsBuildFailure(ctx, lister, &types.Issue{Number: 7}, "abc")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "#7")
	})
}
