// Package trackertest provides an in-memory tracker.Client for tests.
package trackertest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

// Call records one write made through the fake.
type Call struct {
	Op     string // "create", "update", "comment"
	Number int
	Title  string
	Body   string
	Labels []string
	State  types.IssueState
}

// Fake is a concurrency-safe in-memory tracker.
type Fake struct {
	// Now stamps closed issues and comments. Defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	issues   map[int]*types.Issue
	comments map[int][]*types.Comment
	calls    []Call
	failures map[string]error
	next     int
	lists    int
}

var _ tracker.Client = (*Fake)(nil)

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Now:      time.Now,
		issues:   make(map[int]*types.Issue),
		comments: make(map[int][]*types.Comment),
		failures: make(map[string]error),
	}
}

// Add seeds an issue. A zero URL is filled in.
func (f *Fake) Add(issue *types.Issue) *types.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.URL == "" {
		issue.URL = issueURL(issue.Number)
	}
	f.issues[issue.Number] = clone(issue)
	if issue.Number > f.next {
		f.next = issue.Number
	}
	return issue
}

// AddComment seeds a comment without recording a call.
func (f *Fake) AddComment(number int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[number] = append(f.comments[number], &types.Comment{
		ID:        int64(len(f.comments[number]) + 1),
		Body:      body,
		CreatedAt: f.Now(),
	})
}

// FailOn makes op ("list", "get", "create", "update", "comment",
// "comments") fail with err. A non-zero number restricts it to one issue.
func (f *Fake) FailOn(op string, number int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[failureKey(op, number)] = err
}

// Issue returns a copy of the current state of an issue, or nil.
func (f *Fake) Issue(number int) *types.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[number]; ok {
		return clone(issue)
	}
	return nil
}

// Comments returns the bodies of all comments on an issue.
func (f *Fake) Comments(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.comments[number] {
		out = append(out, c.Body)
	}
	return out
}

// Calls returns every write made so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsOf returns the writes of one kind.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ListCount returns how many times ListIssues was called.
func (f *Fake) ListCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *Fake) ListIssues(ctx context.Context, label string) ([]*types.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if err := f.failure("list", 0); err != nil {
		return nil, err
	}
	var out []*types.Issue
	for _, issue := range f.issues {
		if label == "" || slices.Contains(issue.Labels, label) {
			out = append(out, clone(issue))
		}
	}
	slices.SortFunc(out, func(a, b *types.Issue) int { return a.Number - b.Number })
	return out, nil
}

func (f *Fake) GetIssue(ctx context.Context, number int) (*types.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("get", number); err != nil {
		return nil, err
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, fmt.Errorf("issue #%d: %w", number, tracker.ErrNotFound)
	}
	return clone(issue), nil
}

func (f *Fake) CreateIssue(ctx context.Context, title, body string, labels []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("create", 0); err != nil {
		return 0, err
	}
	f.next++
	n := f.next
	f.issues[n] = &types.Issue{
		Number: n,
		Title:  title,
		State:  types.StateOpen,
		Labels: slices.Clone(labels),
		Body:   body,
		URL:    issueURL(n),
	}
	f.calls = append(f.calls, Call{Op: "create", Number: n, Title: title, Body: body, Labels: slices.Clone(labels)})
	return n, nil
}

func (f *Fake) UpdateIssue(ctx context.Context, number int, update types.IssueUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("update", number); err != nil {
		return err
	}
	issue, ok := f.issues[number]
	if !ok {
		return fmt.Errorf("issue #%d: %w", number, tracker.ErrNotFound)
	}
	call := Call{Op: "update", Number: number, Title: issue.Title}
	if update.Labels != nil {
		issue.Labels = slices.Clone(*update.Labels)
		call.Labels = slices.Clone(*update.Labels)
	}
	if update.State != nil {
		if *update.State == types.StateClosed && issue.State != types.StateClosed {
			now := f.Now()
			issue.ClosedAt = &now
		}
		if *update.State == types.StateOpen {
			issue.ClosedAt = nil
		}
		issue.State = *update.State
		call.State = *update.State
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *Fake) CreateComment(ctx context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("comment", number); err != nil {
		return err
	}
	issue, ok := f.issues[number]
	if !ok {
		return fmt.Errorf("issue #%d: %w", number, tracker.ErrNotFound)
	}
	f.comments[number] = append(f.comments[number], &types.Comment{
		ID:        int64(len(f.comments[number]) + 1),
		Body:      body,
		CreatedAt: f.Now(),
	})
	f.calls = append(f.calls, Call{Op: "comment", Number: number, Title: issue.Title, Body: body})
	return nil
}

func (f *Fake) ListComments(ctx context.Context, number int) ([]*types.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("comments", number); err != nil {
		return nil, err
	}
	var out []*types.Comment
	for _, c := range f.comments[number] {
		cc := *c
		out = append(out, &cc)
	}
	return out, nil
}

func (f *Fake) failure(op string, number int) error {
	if err, ok := f.failures[failureKey(op, number)]; ok {
		return err
	}
	if number != 0 {
		return f.failures[failureKey(op, 0)]
	}
	return nil
}

func failureKey(op string, number int) string {
	return fmt.Sprintf("%s:%d", op, number)
}

func issueURL(number int) string {
	return fmt.Sprintf("https://tracker.test/repos/o/r/issues/%d", number)
}

func clone(issue *types.Issue) *types.Issue {
	c := *issue
	c.Labels = slices.Clone(issue.Labels)
	if issue.ClosedAt != nil {
		t := *issue.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}
