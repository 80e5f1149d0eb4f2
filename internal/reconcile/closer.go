package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steveyegge/flakewatch/internal/labels"
	"github.com/steveyegge/flakewatch/internal/lock"
	"github.com/steveyegge/flakewatch/internal/marker"
	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

// PassCloser closes issues whose tests passed.
type PassCloser struct {
	Tracker    tracker.Client
	Locker     lock.Locker
	Normalizer Normalizer
	Flagger    *Flagger
	Logger     *slog.Logger
}

// titleSets returns the titles still failing in the build (tests and their
// package groups) and the titles that passed.
func (c *PassCloser) titleSets(build *types.BuildInput) (failing, passing map[string]bool) {
	failing = make(map[string]bool)
	passing = make(map[string]bool)
	for _, f := range build.Failures {
		failing[c.Normalizer.Title(f)] = true
		if f.Package != "" {
			failing[c.Normalizer.GroupTitle(f.Package)] = true
		}
	}
	for _, p := range build.Passes {
		passing[c.Normalizer.Title(p)] = true
		if p.Package != "" {
			passing[c.Normalizer.GroupTitle(p.Package)] = true
		}
	}
	return failing, passing
}

// Close walks the open issues in snapshot order. It stops after the first
// issue found to be flaky; the remaining issues are handled by the next
// build.
func (c *PassCloser) Close(ctx context.Context, run *Run, issues []*types.Issue) {
	failing, passing := c.titleSets(run.Build)
	for _, issue := range issues {
		if !issue.IsOpen() || failing[issue.Title] || !passing[issue.Title] {
			continue
		}
		if ctx.Err() != nil {
			run.Report.fail(fmt.Errorf("closing #%d: %w", issue.Number, ctx.Err()))
			return
		}
		if labels.IsFlaky(issue) {
			c.Logger.Info("test passed but issue is flaky, leaving it open", "issue", issue.Number)
			run.Report.skip(issue.Number, issue.Title, "flaky")
			continue
		}

		flaky, err := c.closeOne(ctx, run, issue)
		if err != nil {
			c.Logger.Warn("failed to close issue", "issue", issue.Number, "error", err)
			run.Report.fail(fmt.Errorf("closing #%d: %w", issue.Number, err))
		}
		if flaky {
			return
		}
	}
}

// closeOne closes issue, or marks it flaky when the same commit also failed.
// It reports whether flakiness was detected.
func (c *PassCloser) closeOne(ctx context.Context, run *Run, issue *types.Issue) (flaky bool, err error) {
	err = lock.WithIssue(ctx, c.Locker, c.Tracker, issue, func(ctx context.Context, fresh *types.Issue) error {
		if !fresh.IsOpen() {
			run.Report.skip(fresh.Number, fresh.Title, "already closed")
			return nil
		}
		if labels.IsFlaky(fresh) {
			run.Report.skip(fresh.Number, fresh.Title, "flaky")
			return nil
		}

		found, failureURL, err := marker.ContainsBuildFailure(ctx, c.Tracker, fresh, run.Build.Commit)
		if err != nil {
			return err
		}
		if found {
			flaky = true
			reason := sameCommitReason(run.Build.Commit, run.Build.BuildURL, failureURL)
			return c.Flagger.MarkFlaky(ctx, run, fresh, reason)
		}

		c.Logger.Info("closing issue", "issue", fresh.Number, "title", fresh.Title)
		if err := c.Tracker.CreateComment(ctx, fresh.Number, passedComment(run.Build.Commit, run.Build.BuildURL)); err != nil {
			return err
		}
		if err := c.Tracker.UpdateIssue(ctx, fresh.Number, types.CloseUpdate()); err != nil {
			return err
		}
		run.Report.add(Action{Kind: ActionClosed, Issue: fresh.Number, Title: fresh.Title})
		return nil
	})
	return flaky, err
}
