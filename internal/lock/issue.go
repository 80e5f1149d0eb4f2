package lock

import (
	"context"
	"fmt"

	"github.com/steveyegge/flakewatch/internal/types"
)

// IssueNamespace is the namespace of per-issue locks.
const IssueNamespace = "flakewatch"

// IssueGetter reads a fresh copy of an issue.
type IssueGetter interface {
	GetIssue(ctx context.Context, number int) (*types.Issue, error)
}

// WithIssue locks issue, keyed by its URL, re-reads it and runs fn on the
// fresh copy. The snapshot passed in is only used for its identity.
func WithIssue(ctx context.Context, l Locker, getter IssueGetter, issue *types.Issue, fn func(ctx context.Context, fresh *types.Issue) error) error {
	key := issue.URL
	if key == "" {
		key = fmt.Sprintf("#%d", issue.Number)
	}
	return WithLock(ctx, l, IssueNamespace, key, func(ctx context.Context) error {
		fresh, err := getter.GetIssue(ctx, issue.Number)
		if err != nil {
			return fmt.Errorf("failed to re-read issue #%d: %w", issue.Number, err)
		}
		return fn(ctx, fresh)
	})
}
