package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const leaseSchema = `
CREATE TABLE IF NOT EXISTS lock_leases (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    holder TEXT NOT NULL,
    acquired_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    PRIMARY KEY (namespace, key)
);
`

// SQLiteConfig holds lease settings for the SQLite locker.
type SQLiteConfig struct {
	// Lease is how long an acquired lock stays valid without release.
	// Default: 20 seconds
	Lease time.Duration

	// AcquireTimeout bounds how long Acquire keeps polling.
	// Default: 2 minutes
	AcquireTimeout time.Duration

	// PollInterval is the first wait between attempts; it doubles up to
	// MaxPollInterval.
	// Default: 50ms, max 1s
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// DefaultSQLiteConfig returns the default lease settings.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Lease:           20 * time.Second,
		AcquireTimeout:  2 * time.Minute,
		PollInterval:    50 * time.Millisecond,
		MaxPollInterval: time.Second,
	}
}

// Validate checks if the configuration has valid values
func (c SQLiteConfig) Validate() error {
	if c.Lease <= 0 {
		return fmt.Errorf("lease must be positive (got %v)", c.Lease)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire_timeout must be positive (got %v)", c.AcquireTimeout)
	}
	if c.PollInterval <= 0 || c.MaxPollInterval < c.PollInterval {
		return fmt.Errorf("poll interval must be positive and <= max (got %v, max %v)", c.PollInterval, c.MaxPollInterval)
	}
	return nil
}

// SQLite is a lease-based Locker backed by a SQLite database. Processes that
// open the same database file exclude each other.
type SQLite struct {
	db  *sql.DB
	cfg SQLiteConfig
	now func() time.Time
}

// NewSQLite creates the lease table if needed and returns a locker.
func NewSQLite(ctx context.Context, db *sql.DB, cfg SQLiteConfig) (*SQLite, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lock config: %w", err)
	}
	if _, err := db.ExecContext(ctx, leaseSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize lock schema: %w", err)
	}
	return &SQLite{db: db, cfg: cfg, now: time.Now}, nil
}

// tryAcquire inserts the lease, or takes it over if the current one expired.
func (s *SQLite) tryAcquire(ctx context.Context, namespace, key, holder string) (bool, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO lock_leases (namespace, key, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE lock_leases.expires_at <= excluded.acquired_at
	`, namespace, key, holder, now.UnixNano(), now.Add(s.cfg.Lease).UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to write lease: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *SQLite) Acquire(ctx context.Context, namespace, key string) (*Handle, error) {
	holder := uuid.NewString()
	deadline := time.NewTimer(s.cfg.AcquireTimeout)
	defer deadline.Stop()

	wait := s.cfg.PollInterval
	for {
		ok, err := s.tryAcquire(ctx, namespace, key, holder)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Handle{Namespace: namespace, Key: key, token: holder}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrTimeout
		case <-time.After(wait):
		}
		wait = min(wait*2, s.cfg.MaxPollInterval)
	}
}

func (s *SQLite) Release(ctx context.Context, h *Handle) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM lock_leases WHERE namespace = ? AND key = ? AND holder = ?
	`, h.Namespace, h.Key, h.token)
	if err != nil {
		return fmt.Errorf("failed to delete lease: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
