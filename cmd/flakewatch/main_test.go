package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/flakewatch/internal/config"
	"github.com/steveyegge/flakewatch/internal/event"
	"github.com/steveyegge/flakewatch/internal/lock"
	"github.com/steveyegge/flakewatch/internal/reconcile"
	"github.com/steveyegge/flakewatch/internal/storage/sqlite"
	"github.com/steveyegge/flakewatch/internal/types"
)

func localSettings(t *testing.T) settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.db")
	svc := config.DefaultServiceConfig()
	svc.LockDB = path
	return settings{service: svc, trackerDB: path, logger: slog.New(slog.DiscardHandler)}
}

func eventFor(commit string, passed bool) *event.Event {
	rec := types.TestRecord{Package: "github.com/acme/widgets/store", TestCase: "TestPut", Passed: passed}
	res := &event.Results{}
	if passed {
		res.Passes = append(res.Passes, rec)
	} else {
		res.Failures = append(res.Failures, rec)
	}
	return &event.Event{Repo: "acme/widgets", Commit: commit, BuildURL: "https://ci.test/" + commit, Results: res}
}

func TestHandleEventOpensAndCloses(t *testing.T) {
	ctx := context.Background()
	s := localSettings(t)

	report, err := handleEvent(ctx, s, eventFor("c1", false), "")
	require.NoError(t, err)
	require.NoError(t, report.Err())
	created := report.ActionsOf(reconcile.ActionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "store: TestPut failed", created[0].Title)

	report, err = handleEvent(ctx, s, eventFor("c2", true), "")
	require.NoError(t, err)
	closed := report.ActionsOf(reconcile.ActionClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, created[0].Issue, closed[0].Issue)

	store, err := sqlite.New(s.trackerDB)
	require.NoError(t, err)
	defer store.Close()
	issue, err := store.GetIssue(ctx, created[0].Issue)
	require.NoError(t, err)
	assert.Equal(t, types.StateClosed, issue.State)
	assert.Contains(t, issue.Labels, "priority: p1")
}

func TestHandleEventWithoutResults(t *testing.T) {
	report, err := handleEvent(context.Background(), localSettings(t), &event.Event{Repo: "acme/widgets", Commit: "c1"}, "")
	require.NoError(t, err)
	assert.Nil(t, report)
}

func TestHandleEventBadRepo(t *testing.T) {
	_, err := handleEvent(context.Background(), localSettings(t), &event.Event{Repo: "widgets"}, "")
	assert.Error(t, err)
}

func TestHandleEventConfigFile(t *testing.T) {
	ctx := context.Background()
	s := localSettings(t)
	s.dryRun = true

	path := filepath.Join(t.TempDir(), "flakewatch.yaml")
	require.NoError(t, writeFile(path, "issuePriority: p3\n"))

	report, err := handleEvent(ctx, s, eventFor("c1", false), path)
	require.NoError(t, err)
	require.Len(t, report.ActionsOf(reconcile.ActionCreated), 1)

	// Dry run leaves the store untouched.
	store, err := sqlite.New(s.trackerDB)
	require.NoError(t, err)
	defer store.Close()
	issues, err := store.ListIssues(ctx, types.LabelIssue)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestOpenBackendLockers(t *testing.T) {
	ctx := context.Background()

	s := localSettings(t)
	b, err := openBackend(ctx, s, "acme", "widgets")
	require.NoError(t, err)
	assert.IsType(t, &lock.SQLite{}, b.locker)
	assert.Nil(t, b.lockDB, "lock table shares the tracker database")
	require.NoError(t, b.Close())

	s.service.LockDB = filepath.Join(t.TempDir(), "locks.db")
	b, err = openBackend(ctx, s, "acme", "widgets")
	require.NoError(t, err)
	assert.NotNil(t, b.lockDB)
	require.NoError(t, b.Close())

	s.service.LockDB = ""
	_, err = openBackend(ctx, s, "acme", "widgets")
	assert.ErrorContains(t, err, "lock database is required")
}

// Two CLI invocations for the same repository open separate backends; they
// must still exclude each other on an issue.
func TestSeparateBackendsShareIssueLocks(t *testing.T) {
	ctx := context.Background()
	svc := config.DefaultServiceConfig()
	svc.LockDB = filepath.Join(t.TempDir(), "locks.db")
	svc.LockTimeout = 300 * time.Millisecond
	s := settings{service: svc, logger: slog.New(slog.DiscardHandler)}

	first, err := openBackend(ctx, s, "acme", "widgets")
	require.NoError(t, err)
	defer first.Close()
	second, err := openBackend(ctx, s, "acme", "widgets")
	require.NoError(t, err)
	defer second.Close()

	const key = "https://api.github.com/repos/acme/widgets/issues/1"
	h, err := first.locker.Acquire(ctx, lock.IssueNamespace, key)
	require.NoError(t, err)

	_, err = second.locker.Acquire(ctx, lock.IssueNamespace, key)
	assert.ErrorIs(t, err, lock.ErrTimeout)

	require.NoError(t, first.locker.Release(ctx, h))
	h, err = second.locker.Acquire(ctx, lock.IssueNamespace, key)
	require.NoError(t, err)
	require.NoError(t, second.locker.Release(ctx, h))
}

func TestRenderReport(t *testing.T) {
	ctx := context.Background()
	s := localSettings(t)
	report, err := handleEvent(ctx, s, eventFor("c1", false), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	renderReport(&buf, report)
	out := buf.String()
	assert.Contains(t, out, "created")
	assert.Contains(t, out, "store: TestPut failed")
	assert.Contains(t, out, "1 change(s), 0 skipped")
	assert.NotContains(t, out, "error(s)")
}

func TestRenderEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &reconcile.Report{})
	assert.True(t, strings.Contains(buf.String(), "No issues changed"))
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
