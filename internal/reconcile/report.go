package reconcile

import (
	"errors"
	"sync"
)

// ActionKind names something the engine did, or chose not to do, to an
// issue.
type ActionKind string

const (
	ActionCreated         ActionKind = "created"
	ActionCreatedGroup    ActionKind = "created-group"
	ActionCommented       ActionKind = "commented"
	ActionMarkedFlaky     ActionKind = "marked-flaky"
	ActionClosed          ActionKind = "closed"
	ActionClosedDuplicate ActionKind = "closed-duplicate"
	ActionSkipped         ActionKind = "skipped"
)

// Action is one entry of a Report.
type Action struct {
	Kind   ActionKind
	Issue  int
	Title  string
	Detail string
}

// Report collects the outcome of one run. It is safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	actions []Action
	errs    []error
}

func (r *Report) add(a Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
}

func (r *Report) skip(number int, title, reason string) {
	r.add(Action{Kind: ActionSkipped, Issue: number, Title: title, Detail: reason})
}

func (r *Report) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// Actions returns every recorded action in order.
func (r *Report) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Action(nil), r.actions...)
}

// ActionsOf returns the actions of one kind.
func (r *Report) ActionsOf(kind ActionKind) []Action {
	var out []Action
	for _, a := range r.Actions() {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Errors returns the per-issue and per-package failures of the run.
func (r *Report) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Err joins all failures, or returns nil.
func (r *Report) Err() error {
	return errors.Join(r.Errors()...)
}
