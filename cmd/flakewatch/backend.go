package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steveyegge/flakewatch/internal/config"
	"github.com/steveyegge/flakewatch/internal/lock"
	"github.com/steveyegge/flakewatch/internal/storage/sqlite"
	"github.com/steveyegge/flakewatch/internal/tracker"
	ghtracker "github.com/steveyegge/flakewatch/internal/tracker/github"
)

// backend bundles the tracker and lock service for one repository.
type backend struct {
	tracker tracker.Client
	github  *ghtracker.Client // nil for the local store
	store   *sqlite.Store     // nil for GitHub
	locker  lock.Locker

	lockDB *sql.DB // owned only when separate from the store
}

func (b *backend) Close() error {
	var errs []error
	if b.lockDB != nil {
		errs = append(errs, b.lockDB.Close())
	}
	if b.store != nil {
		errs = append(errs, b.store.Close())
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, s settings, owner, repo string) (*backend, error) {
	b := &backend{}
	if s.trackerDB != "" {
		store, err := sqlite.New(s.trackerDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open tracker database: %w", err)
		}
		b.store = store
		b.tracker = store
	} else {
		client, err := ghtracker.New(ctx, owner, repo, ghtracker.Options{
			Token:     s.service.GitHubToken,
			BaseURL:   s.service.GitHubURL,
			RateLimit: s.service.RateLimit,
			Burst:     max(int(s.service.RateLimit), 1),
			Logger:    s.logger,
		})
		if err != nil {
			return nil, err
		}
		b.github = client
		b.tracker = client
	}

	locker, err := b.openLocker(ctx, s)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.locker = locker

	if s.dryRun {
		b.tracker = tracker.NewDryRun(b.tracker, s.logger)
	}
	return b, nil
}

func (b *backend) openLocker(ctx context.Context, s settings) (lock.Locker, error) {
	if s.service.LockDB == "" {
		return nil, fmt.Errorf("a lock database is required to exclude concurrent runs")
	}

	var db *sql.DB
	if b.store != nil && s.service.LockDB == s.trackerDB {
		db = b.store.DB()
	} else {
		var err error
		db, err = sqlite.OpenDB(s.service.LockDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open lock database: %w", err)
		}
		b.lockDB = db
	}

	cfg := lock.DefaultSQLiteConfig()
	cfg.Lease = s.service.LockLease
	cfg.AcquireTimeout = s.service.LockTimeout
	locker, err := lock.NewSQLite(ctx, db, cfg)
	if err != nil {
		return nil, err
	}
	return locker, nil
}

// repoConfig returns the configuration from path when given, otherwise
// from the repository (GitHub only), otherwise the defaults.
func (b *backend) repoConfig(ctx context.Context, s settings, owner, repo, path string) (config.RepoConfig, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if b.github == nil {
		return config.DefaultRepoConfig(), nil
	}
	cfg, origin, err := config.Load(ctx, b.github, owner, repo)
	if err != nil {
		return cfg, err
	}
	s.logger.Debug("loaded repo config", "origin", origin, "issue_priority", cfg.IssuePriority)
	return cfg, nil
}
