// Package sqlite is a local issue store that implements tracker.Client.
// It lets the engine run end to end without a hosted tracker, and its
// database doubles as the backing file for the SQLite lock service.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/flakewatch/internal/tracker"
	"github.com/steveyegge/flakewatch/internal/types"
)

// OpenDB opens (creating if needed) a SQLite database file with WAL mode,
// foreign keys and a busy timeout suitable for several processes.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(on)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(wal)"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Store implements tracker.Client on a SQLite database.
type Store struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

var _ tracker.Client = (*Store)(nil)

// New opens the database at path and initializes the issue schema.
func New(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, name: "sqlite:" + path, now: time.Now}, nil
}

// DB exposes the underlying database, e.g. to share it with the lock service.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) issueURL(number int) string {
	return fmt.Sprintf("%s#%d", s.name, number)
}

func (s *Store) ListIssues(ctx context.Context, label string) ([]*types.Issue, error) {
	query := `SELECT number, title, body, state, locked, closed_at FROM issues`
	var args []any
	if label != "" {
		query += ` WHERE number IN (SELECT issue_number FROM labels WHERE label = ?)`
		args = append(args, label)
	}
	query += ` ORDER BY number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*types.Issue
	byNumber := make(map[int]*types.Issue)
	for rows.Next() {
		issue, err := s.scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
		byNumber[issue.Number] = issue
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	if err := s.attachLabels(ctx, byNumber); err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *Store) GetIssue(ctx context.Context, number int) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT number, title, body, state, locked, closed_at FROM issues WHERE number = ?
	`, number)
	issue, err := s.scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue #%d: %w", number, tracker.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachLabels(ctx, map[int]*types.Issue{number: issue}); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *Store) CreateIssue(ctx context.Context, title, body string, labels []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UnixNano()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO issues (title, body, state, created_at, updated_at)
		VALUES (?, ?, 'open', ?, ?)
	`, title, body, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert issue: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get issue number: %w", err)
	}
	if err := setLabels(ctx, tx, int(id), labels); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit issue: %w", err)
	}
	return int(id), nil
}

func (s *Store) UpdateIssue(ctx context.Context, number int, update types.IssueUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UnixNano()
	result, err := tx.ExecContext(ctx, `UPDATE issues SET updated_at = ? WHERE number = ?`, now, number)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("issue #%d: %w", number, tracker.ErrNotFound)
	}

	if update.State != nil {
		if !update.State.IsValid() {
			return fmt.Errorf("invalid state: %s", *update.State)
		}
		switch *update.State {
		case types.StateClosed:
			// Keep the first close time when closing an already closed issue.
			_, err = tx.ExecContext(ctx, `
				UPDATE issues SET state = 'closed', closed_at = COALESCE(closed_at, ?) WHERE number = ?
			`, now, number)
		case types.StateOpen:
			_, err = tx.ExecContext(ctx, `
				UPDATE issues SET state = 'open', closed_at = NULL WHERE number = ?
			`, number)
		}
		if err != nil {
			return fmt.Errorf("failed to update state: %w", err)
		}
	}

	if update.Labels != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE issue_number = ?`, number); err != nil {
			return fmt.Errorf("failed to clear labels: %w", err)
		}
		if err := setLabels(ctx, tx, number, *update.Labels); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SetLocked toggles the conversation lock of an issue.
func (s *Store) SetLocked(ctx context.Context, number int, locked bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE issues SET locked = ?, updated_at = ? WHERE number = ?`,
		locked, s.now().UnixNano(), number)
	if err != nil {
		return fmt.Errorf("failed to set locked: %w", err)
	}
	return nil
}

func (s *Store) CreateComment(ctx context.Context, number int, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (issue_number, body, created_at) VALUES (?, ?, ?)
	`, number, body, s.now().UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("issue #%d: %w", number, tracker.ErrNotFound)
		}
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

func (s *Store) ListComments(ctx context.Context, number int) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, created_at FROM comments WHERE issue_number = ? ORDER BY id
	`, number)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*types.Comment
	for rows.Next() {
		var c types.Comment
		var created int64
		if err := rows.Scan(&c.ID, &c.Body, &created); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanIssue(row scanner) (*types.Issue, error) {
	var issue types.Issue
	var state string
	var closedAt sql.NullInt64
	if err := row.Scan(&issue.Number, &issue.Title, &issue.Body, &state, &issue.Locked, &closedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}
	issue.State = types.IssueState(state)
	if closedAt.Valid {
		t := time.Unix(0, closedAt.Int64).UTC()
		issue.ClosedAt = &t
	}
	issue.URL = s.issueURL(issue.Number)
	return &issue, nil
}

func (s *Store) attachLabels(ctx context.Context, issues map[int]*types.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT issue_number, label FROM labels ORDER BY issue_number, position`)
	if err != nil {
		return fmt.Errorf("failed to get labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var number int
		var label string
		if err := rows.Scan(&number, &label); err != nil {
			return fmt.Errorf("failed to scan label: %w", err)
		}
		if issue, ok := issues[number]; ok {
			issue.Labels = append(issue.Labels, label)
		}
	}
	return rows.Err()
}

func setLabels(ctx context.Context, tx *sql.Tx, number int, labels []string) error {
	for i, label := range labels {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO labels (issue_number, label, position) VALUES (?, ?, ?)
		`, number, label, i)
		if err != nil {
			return fmt.Errorf("failed to add label %s: %w", label, err)
		}
	}
	return nil
}
