// Package tracker defines the issue-tracker operations the engine needs.
//
// A Client is bound to one repository. Implementations live in
// subpackages (GitHub) and in internal/storage/sqlite (local store).
package tracker

import (
	"context"
	"errors"

	"github.com/steveyegge/flakewatch/internal/types"
)

// ErrNotFound is returned when an issue or file does not exist.
var ErrNotFound = errors.New("not found")

// Client is the issue-tracker surface consumed by the engine.
type Client interface {
	// ListIssues returns every issue (open and closed) carrying label.
	ListIssues(ctx context.Context, label string) ([]*types.Issue, error)
	// GetIssue returns a fresh copy of an issue.
	GetIssue(ctx context.Context, number int) (*types.Issue, error)
	// CreateIssue opens a new issue and returns its number.
	CreateIssue(ctx context.Context, title, body string, labels []string) (int, error)
	UpdateIssue(ctx context.Context, number int, update types.IssueUpdate) error
	CreateComment(ctx context.Context, number int, body string) error
	ListComments(ctx context.Context, number int) ([]*types.Comment, error)
}
