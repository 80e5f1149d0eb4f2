package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/flakewatch/internal/labels"
	"github.com/steveyegge/flakewatch/internal/lock"
	"github.com/steveyegge/flakewatch/internal/marker"
	"github.com/steveyegge/flakewatch/internal/normalize"
	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

// PackageOpener files and updates issues for failing tests, one package at
// a time.
type PackageOpener struct {
	Tracker    tracker.Client
	Locker     lock.Locker
	Normalizer Normalizer
	Matcher    Matcher
	Flagger    *Flagger
	Logger     *slog.Logger

	// Concurrency bounds how many packages are handled at once.
	Concurrency int
}

type packageFailures struct {
	pkg      string
	failures []types.TestRecord
}

// byPackage buckets failures by package, keeping first-seen order.
func byPackage(failures []types.TestRecord) []packageFailures {
	index := make(map[string]int)
	var out []packageFailures
	for _, f := range failures {
		pkg := normalize.PackageKey(f)
		i, ok := index[pkg]
		if !ok {
			i = len(out)
			index[pkg] = i
			out = append(out, packageFailures{pkg: pkg})
		}
		out[i].failures = append(out[i].failures, f)
	}
	return out
}

// Open handles every failure of the run. Packages are independent: their
// issues and locks never overlap, so they run in parallel.
func (o *PackageOpener) Open(ctx context.Context, run *Run, issues []*types.Issue) {
	var g errgroup.Group
	g.SetLimit(max(o.Concurrency, 1))
	for _, p := range byPackage(run.Build.Failures) {
		g.Go(func() error {
			o.openPackage(ctx, run, issues, p.pkg, p.failures)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *PackageOpener) openPackage(ctx context.Context, run *Run, issues []*types.Issue, pkg string, failures []types.TestRecord) {
	if ctx.Err() != nil {
		run.Report.fail(fmt.Errorf("package %s: %w", pkg, ctx.Err()))
		return
	}

	if group := o.Matcher.FindGroupIssue(issues, pkg); group != nil {
		if err := o.commentOnGroup(ctx, run, group, pkg, len(failures)); err != nil {
			o.Logger.Warn("failed to update group issue", "package", pkg, "issue", group.Number, "error", err)
			run.Report.fail(fmt.Errorf("package %s: group issue #%d: %w", pkg, group.Number, err))
		}
		return
	}

	if len(failures) >= GroupThreshold {
		if err := o.createGroupIssue(ctx, run, issues, pkg, failures); err != nil {
			o.Logger.Warn("failed to create group issue", "package", pkg, "error", err)
			run.Report.fail(fmt.Errorf("package %s: %w", pkg, err))
		}
		return
	}

	for _, f := range failures {
		if err := o.openOne(ctx, run, issues, f); err != nil {
			title := o.Normalizer.Title(f)
			o.Logger.Warn("failed to handle failure", "package", pkg, "title", title, "error", err)
			run.Report.fail(fmt.Errorf("%q: %w", title, err))
		}
	}
}

func (o *PackageOpener) commentOnGroup(ctx context.Context, run *Run, group *types.Issue, pkg string, count int) error {
	return lock.WithIssue(ctx, o.Locker, o.Tracker, group, func(ctx context.Context, fresh *types.Issue) error {
		skip, err := o.commentSkipReason(ctx, run, fresh)
		if err != nil {
			return err
		}
		if skip != "" {
			run.Report.skip(fresh.Number, fresh.Title, skip)
			return nil
		}
		body := groupComment(count, normalize.GroupRecord(pkg), run.Build.Commit, run.Build.BuildURL)
		if err := o.Tracker.CreateComment(ctx, fresh.Number, body); err != nil {
			return err
		}
		run.Report.add(Action{Kind: ActionCommented, Issue: fresh.Number, Title: fresh.Title,
			Detail: fmt.Sprintf("%d failures", count)})
		return nil
	})
}

// commentSkipReason returns why no failure comment should be posted on an
// open issue, or "" to post one.
func (o *PackageOpener) commentSkipReason(ctx context.Context, run *Run, issue *types.Issue) (string, error) {
	if labels.IsQuiet(issue) {
		return "quiet", nil
	}
	if labels.IsFlaky(issue) {
		return "flaky", nil
	}
	found, _, err := marker.ContainsBuildFailure(ctx, o.Tracker, issue, run.Build.Commit)
	if err != nil {
		return "", err
	}
	if found {
		return "already reported", nil
	}
	return "", nil
}

func (o *PackageOpener) createGroupIssue(ctx context.Context, run *Run, issues []*types.Issue, pkg string, failures []types.TestRecord) error {
	title := o.Normalizer.GroupTitle(pkg)
	existing := func(r types.TestRecord) *types.Issue { return o.Matcher.FindExisting(issues, r) }
	body := groupIssueBody(normalize.GroupRecord(pkg), failures, existing, run.Build.Commit, run.Build.BuildURL)

	o.Logger.Info("creating group issue", "package", pkg, "title", title, "failures", len(failures))
	n, err := o.Tracker.CreateIssue(ctx, title, body, labels.ForNewIssue(run.Priority))
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", title, err)
	}
	run.Report.add(Action{Kind: ActionCreatedGroup, Issue: n, Title: title,
		Detail: fmt.Sprintf("%d failures", len(failures))})
	return nil
}

func (o *PackageOpener) createIssue(ctx context.Context, run *Run, f types.TestRecord, note string) error {
	title := o.Normalizer.Title(f)
	body := newIssueBody(f, run.Build.Commit, run.Build.BuildURL, note)

	o.Logger.Info("creating issue", "title", title)
	n, err := o.Tracker.CreateIssue(ctx, title, body, labels.ForNewIssue(run.Priority))
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", title, err)
	}
	run.Report.add(Action{Kind: ActionCreated, Issue: n, Title: title, Detail: note})
	return nil
}

func (o *PackageOpener) openOne(ctx context.Context, run *Run, issues []*types.Issue, f types.TestRecord) error {
	existing := o.Matcher.FindExisting(issues, f)
	if existing == nil {
		return o.createIssue(ctx, run, f, "")
	}

	return lock.WithIssue(ctx, o.Locker, o.Tracker, existing, func(ctx context.Context, fresh *types.Issue) error {
		if !fresh.IsOpen() {
			return o.failedAfterClose(ctx, run, fresh, f)
		}
		skip, err := o.commentSkipReason(ctx, run, fresh)
		if err != nil {
			return err
		}
		if skip != "" {
			run.Report.skip(fresh.Number, fresh.Title, skip)
			return nil
		}
		if err := o.Tracker.CreateComment(ctx, fresh.Number, marker.Encode(f, run.Build.Commit, run.Build.BuildURL)); err != nil {
			return err
		}
		run.Report.add(Action{Kind: ActionCommented, Issue: fresh.Number, Title: fresh.Title})
		return nil
	})
}

// failedAfterClose handles a failure whose issue is closed: a new issue
// when the old one cannot or should not be reopened, otherwise the test is
// flaky.
func (o *PackageOpener) failedAfterClose(ctx context.Context, run *Run, closed *types.Issue, f types.TestRecord) error {
	if closed.Locked {
		return o.createIssue(ctx, run, f, lockedNote(closed.Number))
	}
	if closed.ClosedAt != nil && closed.ClosedAt.Before(run.Now.Add(-ReopenWindow)) {
		return o.createIssue(ctx, run, f, closedLongAgoNote(closed.Number))
	}
	return o.Flagger.MarkFlaky(ctx, run, closed, marker.Encode(f, run.Build.Commit, run.Build.BuildURL))
}
