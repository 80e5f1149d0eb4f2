// Package reconcile decides, for one build, which tracker issues to open,
// comment on, mark flaky or close.
//
// A run lists every engine-owned issue once, closes duplicates, then hands
// the snapshot to the Opener (failures) and the Closer (passes). Every
// read-modify-write on a single issue happens under that issue's lock on a
// fresh read, so concurrent runs for other builds of the same repository
// cannot interleave on it.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/flakewatch/internal/config"
	"github.com/steveyegge/flakewatch/internal/deduplication"
	"github.com/steveyegge/flakewatch/internal/lock"
	"github.com/steveyegge/flakewatch/internal/matcher"
	"github.com/steveyegge/flakewatch/internal/normalize"
	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

const (
	// GroupThreshold is the number of failures in one package at which a
	// single group issue is filed instead of one issue per test.
	GroupThreshold = 10

	reopenWindowDays = 10

	// ReopenWindow is how long after closing an issue a new failure marks
	// it flaky instead of filing a new issue.
	ReopenWindow = reopenWindowDays * 24 * time.Hour

	// DefaultConcurrency is the default number of packages opened in
	// parallel.
	DefaultConcurrency = 4
)

// Normalizer derives issue titles from test records.
type Normalizer interface {
	Title(r types.TestRecord) string
	GroupTitle(pkg string) string
}

// Matcher finds the issue for a test or package.
type Matcher interface {
	FindExisting(issues []*types.Issue, r types.TestRecord) *types.Issue
	FindGroupIssue(issues []*types.Issue, pkg string) *types.Issue
}

// Deduplicator closes duplicate open issues for tests in the build.
type Deduplicator interface {
	Deduplicate(ctx context.Context, build *types.BuildInput, issues []*types.Issue) (*deduplication.Result, error)
}

// Opener handles the failures of a run.
type Opener interface {
	Open(ctx context.Context, run *Run, issues []*types.Issue)
}

// Closer handles the passes of a run.
type Closer interface {
	Close(ctx context.Context, run *Run, issues []*types.Issue)
}

// Run is the state shared by the stages of one invocation.
type Run struct {
	Build    *types.BuildInput
	Priority string
	Now      time.Time
	Report   *Report
}

// Options configures an Engine. Tracker and Locker are required; nil stages
// get the default implementations. The default Matcher and Deduplicator
// take their titles from Normalizer, so one Normalizer defines the join key
// for every stage.
type Options struct {
	Tracker tracker.Client
	Locker  lock.Locker
	Config  config.RepoConfig

	// Concurrency bounds the packages opened in parallel.
	// Default: 4
	Concurrency int

	// Now is the clock used for the reopen window. Default: time.Now.
	Now    func() time.Time
	Logger *slog.Logger

	Normalizer   Normalizer
	Matcher      Matcher
	Deduplicator Deduplicator
	Opener       Opener
	Closer       Closer
}

// Engine reconciles builds against the tracker.
type Engine struct {
	tracker  tracker.Client
	priority string
	now      func() time.Time
	logger   *slog.Logger

	deduplicator Deduplicator
	opener       Opener
	closer       Closer
}

// New wires an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if opts.Locker == nil {
		return nil, fmt.Errorf("locker is required")
	}
	if opts.Config.IssuePriority == "" {
		opts.Config = config.DefaultRepoConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid repo config: %w", err)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.Normalizer{}
	}
	if opts.Matcher == nil {
		opts.Matcher = matcher.Matcher{Titles: opts.Normalizer}
	}
	if opts.Deduplicator == nil {
		d := deduplication.New(opts.Tracker, opts.Locker, opts.Logger)
		d.Title = opts.Normalizer.Title
		opts.Deduplicator = d
	}

	flagger := &Flagger{Tracker: opts.Tracker, Logger: opts.Logger}
	if opts.Opener == nil {
		opts.Opener = &PackageOpener{
			Tracker:     opts.Tracker,
			Locker:      opts.Locker,
			Normalizer:  opts.Normalizer,
			Matcher:     opts.Matcher,
			Flagger:     flagger,
			Logger:      opts.Logger,
			Concurrency: opts.Concurrency,
		}
	}
	if opts.Closer == nil {
		opts.Closer = &PassCloser{
			Tracker:    opts.Tracker,
			Locker:     opts.Locker,
			Normalizer: opts.Normalizer,
			Flagger:    flagger,
			Logger:     opts.Logger,
		}
	}

	return &Engine{
		tracker:      opts.Tracker,
		priority:     opts.Config.IssuePriority,
		now:          opts.Now,
		logger:       opts.Logger,
		deduplicator: opts.Deduplicator,
		opener:       opts.Opener,
		closer:       opts.Closer,
	}, nil
}

// Run reconciles one build. Only an invalid build or a failure to list
// issues returns an error; everything else is recorded in the report and
// the run continues.
func (e *Engine) Run(ctx context.Context, build *types.BuildInput) (*Report, error) {
	if err := build.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build: %w", err)
	}
	run := &Run{Build: build, Priority: e.priority, Now: e.now(), Report: &Report{}}
	e.logBuild(build)

	issues, err := e.tracker.ListIssues(ctx, types.LabelIssue)
	if err != nil {
		return run.Report, fmt.Errorf("failed to list issues: %w", err)
	}

	result, err := e.deduplicator.Deduplicate(ctx, build, issues)
	if err != nil {
		run.Report.fail(fmt.Errorf("deduplication: %w", err))
	}
	if result != nil {
		for _, c := range result.Closed {
			run.Report.add(Action{Kind: ActionClosedDuplicate, Issue: c.Number, Title: c.Title,
				Detail: fmt.Sprintf("duplicate of #%d", c.DuplicateOf)})
		}
		for _, err := range result.Errors {
			run.Report.fail(err)
		}
		if result.Modified() {
			issues, err = e.tracker.ListIssues(ctx, types.LabelIssue)
			if err != nil {
				return run.Report, fmt.Errorf("failed to list issues after deduplication: %w", err)
			}
		}
	}

	e.opener.Open(ctx, run, issues)
	e.closer.Close(ctx, run, issues)

	e.logger.Info("reconciled build",
		"commit", build.Commit,
		"build_url", build.BuildURL,
		"actions", len(run.Report.Actions()),
		"errors", len(run.Report.Errors()))
	return run.Report, nil
}

func (e *Engine) logBuild(build *types.BuildInput) {
	e.logger.Info("processing build",
		"commit", build.Commit,
		"build_url", build.BuildURL,
		"passes", len(build.Passes),
		"failures", len(build.Failures))
	if len(build.Passes) > 0 {
		p := build.Passes[0]
		e.logger.Debug("example pass", "package", p.Package, "test", p.TestCase)
	}
	if len(build.Failures) > 0 {
		f := build.Failures[0]
		e.logger.Debug("example failure", "package", f.Package, "test", f.TestCase)
	}
}
