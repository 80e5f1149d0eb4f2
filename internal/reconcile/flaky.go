package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steveyegge/flakewatch/internal/labels"
	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

// Flagger marks issues flaky.
type Flagger struct {
	Tracker tracker.Client
	Logger  *slog.Logger
}

// MarkFlaky relabels issue as flaky, reopens it and explains why. issue
// must be a fresh read taken under the issue lock.
func (f *Flagger) MarkFlaky(ctx context.Context, run *Run, issue *types.Issue, reason string) error {
	next := labels.NextLabels(issue.Labels, labels.ForFlakyIssue(run.Priority))
	f.Logger.Info("marking issue flaky", "issue", issue.Number, "title", issue.Title)
	if err := f.Tracker.UpdateIssue(ctx, issue.Number, types.ReopenUpdate(next)); err != nil {
		return fmt.Errorf("failed to mark #%d flaky: %w", issue.Number, err)
	}

	body := flakyMessage
	if labels.IsFlaky(issue) {
		body = flakyAgainMessage
	}
	if err := f.Tracker.CreateComment(ctx, issue.Number, body+"\n\n"+reason); err != nil {
		return fmt.Errorf("failed to comment on flaky #%d: %w", issue.Number, err)
	}
	run.Report.add(Action{Kind: ActionMarkedFlaky, Issue: issue.Number, Title: issue.Title})
	return nil
}
