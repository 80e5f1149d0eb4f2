package tracker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/steveyegge/flakewatch/internal/types"
)

// DryRun wraps a Client so that reads go through and writes are only logged.
// Created issues get synthetic numbers above any real issue.
type DryRun struct {
	inner  Client
	logger *slog.Logger

	mu   sync.Mutex
	next int
}

// NewDryRun returns a dry-run view of inner.
func NewDryRun(inner Client, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{inner: inner, logger: logger, next: 1_000_000}
}

func (d *DryRun) ListIssues(ctx context.Context, label string) ([]*types.Issue, error) {
	return d.inner.ListIssues(ctx, label)
}

func (d *DryRun) GetIssue(ctx context.Context, number int) (*types.Issue, error) {
	return d.inner.GetIssue(ctx, number)
}

func (d *DryRun) ListComments(ctx context.Context, number int) ([]*types.Comment, error) {
	return d.inner.ListComments(ctx, number)
}

func (d *DryRun) CreateIssue(ctx context.Context, title, body string, labels []string) (int, error) {
	d.mu.Lock()
	d.next++
	n := d.next
	d.mu.Unlock()
	d.logger.Info("dry-run: would create issue", "title", title, "labels", labels, "body_bytes", len(body))
	return n, nil
}

func (d *DryRun) UpdateIssue(ctx context.Context, number int, update types.IssueUpdate) error {
	attrs := []any{"issue", number}
	if update.State != nil {
		attrs = append(attrs, "state", *update.State)
	}
	if update.Labels != nil {
		attrs = append(attrs, "labels", *update.Labels)
	}
	d.logger.Info("dry-run: would update issue", attrs...)
	return nil
}

func (d *DryRun) CreateComment(ctx context.Context, number int, body string) error {
	d.logger.Info("dry-run: would comment", "issue", number, "body_bytes", len(body))
	return nil
}
