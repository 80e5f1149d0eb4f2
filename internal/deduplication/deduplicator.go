package deduplication

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/steveyegge/flakewatch/internal/lock"
	"github.com/steveyegge/flakewatch/internal/matcher"
	"github.com/steveyegge/flakewatch/internal/normalize"
	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

// Closed records one duplicate that was closed.
type Closed struct {
	Number      int
	Title       string
	DuplicateOf int
}

// Result summarizes one deduplication pass.
type Result struct {
	// Groups is the number of titles that had more than one open issue.
	Groups int

	Closed  []Closed
	Skipped []int // already closed on re-read
	Errors  []error
}

// Modified reports whether the issue list may have changed, in which case
// the caller must list issues again.
func (r *Result) Modified() bool {
	return r.Groups > 0
}

// Deduplicator closes all but the best open issue per title.
type Deduplicator struct {
	Tracker tracker.Client
	Locker  lock.Locker
	Logger  *slog.Logger

	// Title derives the issue title of a test. Default: normalize.Title.
	Title func(types.TestRecord) string
}

// New creates a Deduplicator.
func New(client tracker.Client, locker lock.Locker, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{Tracker: client, Locker: locker, Logger: logger}
}

// DuplicateComment is posted on every closed duplicate.
func DuplicateComment(survivor int) string {
	return fmt.Sprintf("Closing as a duplicate of #%d", survivor)
}

// Groups returns, per title, the open issues for tests in build that share
// that title, best first. Titles with a single issue are omitted. Groups are
// ordered by their best issue's number.
func Groups(build *types.BuildInput, issues []*types.Issue) [][]*types.Issue {
	return GroupsBy(build, issues, normalize.Title)
}

// GroupsBy is Groups with titles derived by title.
func GroupsBy(build *types.BuildInput, issues []*types.Issue, title func(types.TestRecord) string) [][]*types.Issue {
	titles := make(map[string]bool)
	for _, r := range build.All() {
		titles[title(r)] = true
	}

	byTitle := make(map[string][]*types.Issue)
	for _, issue := range issues {
		if issue.IsOpen() && titles[issue.Title] {
			byTitle[issue.Title] = append(byTitle[issue.Title], issue)
		}
	}

	var groups [][]*types.Issue
	for _, group := range byTitle {
		if len(group) <= 1 {
			continue
		}
		group = slices.Clone(group)
		slices.SortFunc(group, matcher.Compare)
		groups = append(groups, group)
	}
	slices.SortFunc(groups, func(a, b []*types.Issue) int { return a[0].Number - b[0].Number })
	return groups
}

// Deduplicate closes duplicates among issues. Per-issue failures are
// collected in the result; the returned error is only set when ctx ends.
func (d *Deduplicator) Deduplicate(ctx context.Context, build *types.BuildInput, issues []*types.Issue) (*Result, error) {
	title := d.Title
	if title == nil {
		title = normalize.Title
	}
	result := &Result{}
	for _, group := range GroupsBy(build, issues, title) {
		result.Groups++
		survivor := group[0]
		for _, dup := range group[1:] {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := d.closeDuplicate(ctx, dup, survivor, result); err != nil {
				d.Logger.Warn("failed to close duplicate", "issue", dup.Number, "duplicate_of", survivor.Number, "error", err)
				result.Errors = append(result.Errors, fmt.Errorf("closing duplicate #%d: %w", dup.Number, err))
			}
		}
	}
	return result, nil
}

func (d *Deduplicator) closeDuplicate(ctx context.Context, dup, survivor *types.Issue, result *Result) error {
	return lock.WithIssue(ctx, d.Locker, d.Tracker, dup, func(ctx context.Context, fresh *types.Issue) error {
		if !fresh.IsOpen() {
			d.Logger.Debug("duplicate already closed", "issue", fresh.Number)
			result.Skipped = append(result.Skipped, fresh.Number)
			return nil
		}
		d.Logger.Info("closing duplicate issue", "issue", fresh.Number, "duplicate_of", survivor.Number, "title", fresh.Title)
		if err := d.Tracker.CreateComment(ctx, fresh.Number, DuplicateComment(survivor.Number)); err != nil {
			return err
		}
		if err := d.Tracker.UpdateIssue(ctx, fresh.Number, types.CloseUpdate()); err != nil {
			return err
		}
		result.Closed = append(result.Closed, Closed{Number: fresh.Number, Title: fresh.Title, DuplicateOf: survivor.Number})
		return nil
	})
}
