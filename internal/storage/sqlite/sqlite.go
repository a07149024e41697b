// Package sqlite implements the storage interface on a single SQLite file.
//
// All multi-statement mutations run inside BEGIN IMMEDIATE transactions so
// the write lock is acquired up front; this serializes ID generation and
// status changes across concurrent writers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/types"
)

// Store implements storage.Storage using SQLite
type Store struct {
	db          *sql.DB
	issuePrefix string // prefix for issue IDs (e.g., "wd-")
}

// New creates a new SQLite storage backend.
// The special path ":memory:" creates an in-memory database for tests.
func New(path string) (*Store, error) {
	issuePrefix := "wd-"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		// Derive the ID prefix from the database filename, e.g.
		// ".warden/wd.db" -> "wd-".
		filename := filepath.Base(path)
		if prefix := strings.TrimSuffix(filename, filepath.Ext(filename)); prefix != "" {
			issuePrefix = prefix + "-"
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must not open a
	// second one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, issuePrefix: issuePrefix}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// beginImmediate acquires a dedicated connection and starts an IMMEDIATE
// transaction on it. database/sql's BeginTx always uses DEFERRED mode, so
// raw BEGIN IMMEDIATE is executed on a pinned connection instead.
func (s *Store) beginImmediate(ctx context.Context) (*sql.Conn, func(committed *bool), error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	cleanup := func(committed *bool) {
		if !*committed {
			// Rollback with a background context so cleanup happens even if
			// ctx is already cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
		conn.Close()
	}
	return conn, cleanup, nil
}

// CreateIssue persists a new issue and its creation transition.
// The issue's ID is assigned here from the atomic per-prefix counter; the
// first history entry always has a null from-status.
func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	if issue.Status == "" {
		issue.Status = types.StatusOpen
	}
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.LastUpdated = now

	conn, cleanup, err := s.beginImmediate(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer cleanup(&committed)

	// Allocate the next ID atomically within the write lock.
	prefix := strings.TrimSuffix(s.issuePrefix, "-")
	var nextID int
	err = conn.QueryRowContext(ctx, `
		INSERT INTO issue_counters (prefix, last_id) VALUES (?, 1)
		ON CONFLICT(prefix) DO UPDATE SET last_id = last_id + 1
		RETURNING last_id
	`, prefix).Scan(&nextID)
	if err != nil {
		return fmt.Errorf("failed to allocate issue id: %w", err)
	}
	issue.ID = fmt.Sprintf("%s%d", s.issuePrefix, nextID)

	labels, err := json.Marshal(issue.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}
	relatedFiles, err := json.Marshal(issue.RelatedFiles)
	if err != nil {
		return fmt.Errorf("failed to marshal related files: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO issues (id, external_id, title, error_text, source, file, line,
			severity, category, labels, related_files, status, created_at, last_updated, stale_reminder_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, issue.ID, issue.ExternalID, issue.Title, issue.ErrorText, issue.Source, issue.File,
		issue.Line, issue.Severity, issue.Category, string(labels), string(relatedFiles),
		issue.Status, issue.CreatedAt, issue.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO state_transitions (issue_id, from_status, to_status, timestamp, triggered_by)
		VALUES (?, NULL, ?, ?, ?)
	`, issue.ID, issue.Status, now, actor)
	if err != nil {
		return fmt.Errorf("failed to insert creation transition: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	committed = true

	issue.History = []types.StateTransition{
		{From: nil, To: issue.Status, Timestamp: now, Trigger: actor},
	}
	return nil
}

// GetIssue loads an issue with its full state history
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, title, error_text, source, file, line, severity,
			category, labels, related_files, status, created_at, last_updated,
			stale_reminder_sent, closure_verification
		FROM issues WHERE id = ?
	`, id)

	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	issue.History, err = s.loadTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// ListIssues returns issues matching the filter, histories included
func (s *Store) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	query := `
		SELECT id, external_id, title, error_text, source, file, line, severity,
			category, labels, related_files, status, created_at, last_updated,
			stale_reminder_sent, closure_verification
		FROM issues WHERE 1=1`
	var args []interface{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.ExcludeClosed {
		query += " AND status != ?"
		args = append(args, types.StatusClosed)
	}
	if filter.Category != nil {
		query += " AND category = ?"
		args = append(args, *filter.Category)
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issues: %w", err)
	}

	for _, issue := range issues {
		issue.History, err = s.loadTransitions(ctx, issue.ID)
		if err != nil {
			return nil, err
		}
	}
	return issues, nil
}

// UpdateStatus appends a state transition and updates the issue's status.
// Illegal transitions are rejected with storage.ErrInvalidTransition.
func (s *Store) UpdateStatus(ctx context.Context, id string, to types.Status, trigger string) error {
	if !to.IsValid() {
		return fmt.Errorf("invalid status: %s", to)
	}

	conn, cleanup, err := s.beginImmediate(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer cleanup(&committed)

	var current types.Status
	err = conn.QueryRowContext(ctx, "SELECT status FROM issues WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read current status: %w", err)
	}

	if !current.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, current, to)
	}

	now := time.Now().UTC()
	if err := appendTransition(ctx, conn, id, current, to, now, trigger); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	committed = true
	return nil
}

// SetExternalID records the external tracker id once
func (s *Store) SetExternalID(ctx context.Context, id string, externalID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE issues SET external_id = ? WHERE id = ? AND external_id IS NULL",
		externalID, id)
	if err != nil {
		return fmt.Errorf("failed to set external id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		if exists, err := s.issueExists(ctx, id); err != nil {
			return err
		} else if !exists {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return fmt.Errorf("external id already set for %s", id)
	}
	return nil
}

// MarkStaleReminderSent flips the stale flag; the boolean result tells the
// caller whether this call performed the flip.
func (s *Store) MarkStaleReminderSent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE issues SET stale_reminder_sent = 1 WHERE id = ? AND stale_reminder_sent = 0", id)
	if err != nil {
		return false, fmt.Errorf("failed to mark stale reminder: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		if exists, err := s.issueExists(ctx, id); err != nil {
			return false, err
		} else if !exists {
			return false, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return false, nil // flag was already set
	}
	return true, nil
}

// RecordClosure transitions the issue to closed with its verification result
// attached, and bumps the auto/manual closure counter.
func (s *Store) RecordClosure(ctx context.Context, id string, result *types.VerificationResult, trigger string) error {
	if result == nil {
		return fmt.Errorf("verification result is required")
	}
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid verification result: %w", err)
	}

	conn, cleanup, err := s.beginImmediate(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer cleanup(&committed)

	var current types.Status
	err = conn.QueryRowContext(ctx, "SELECT status FROM issues WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read current status: %w", err)
	}
	if current == types.StatusClosed {
		return fmt.Errorf("%w: %s", storage.ErrAlreadyClosed, id)
	}

	closure, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal verification result: %w", err)
	}

	now := time.Now().UTC()
	if err := appendTransition(ctx, conn, id, current, types.StatusClosed, now, trigger); err != nil {
		return err
	}

	_, err = conn.ExecContext(ctx,
		"UPDATE issues SET closure_verification = ? WHERE id = ?", string(closure), id)
	if err != nil {
		return fmt.Errorf("failed to attach closure record: %w", err)
	}

	counter := "manual_closed"
	if trigger == "auto-closer" {
		counter = "auto_closed"
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO counters (key, value) VALUES (?, 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1
	`, counter)
	if err != nil {
		return fmt.Errorf("failed to update closure counter: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	committed = true
	return nil
}

// GetStatistics computes aggregate metrics
func (s *Store) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM issues GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count issues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status types.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan counts: %w", err)
		}
		stats.TotalIssues += count
		switch status {
		case types.StatusOpen, types.StatusPendingClosure:
			stats.OpenIssues += count
		case types.StatusInProgress:
			stats.InProgressIssues += count
		case types.StatusClosed:
			stats.ClosedIssues += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counts: %w", err)
	}

	for key, dst := range map[string]*int{
		"auto_closed":   &stats.AutoClosed,
		"manual_closed": &stats.ManualClosed,
	} {
		var value int
		err := s.db.QueryRowContext(ctx, "SELECT value FROM counters WHERE key = ?", key).Scan(&value)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to read counter %s: %w", key, err)
		}
		*dst = value
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG((julianday(last_updated) - julianday(created_at)) * 24.0)
		FROM issues WHERE status = 'closed'
	`).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("failed to compute average time to close: %w", err)
	}
	if avg.Valid {
		stats.AverageHoursToClose = avg.Float64
	}
	return stats, nil
}

// GetEmbedding returns the cached vector for a key, or nil when absent
func (s *Store) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, "SELECT vector FROM embedding_cache WHERE key = ?", key).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding cache: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal([]byte(encoded), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode cached vector: %w", err)
	}
	return vec, nil
}

// PutEmbedding stores a vector under a key, overwriting any previous entry
func (s *Store) PutEmbedding(ctx context.Context, key string, vec []float32) error {
	encoded, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (key, vector, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET vector = excluded.vector
	`, key, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write embedding cache: %w", err)
	}
	return nil
}

func (s *Store) issueExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM issues WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check issue existence: %w", err)
	}
	return true, nil
}

// appendTransition inserts a history row and updates status/last_updated.
// Must be called inside an open transaction.
func appendTransition(ctx context.Context, conn *sql.Conn, id string, from, to types.Status, at time.Time, trigger string) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO state_transitions (issue_id, from_status, to_status, timestamp, triggered_by)
		VALUES (?, ?, ?, ?, ?)
	`, id, from, to, at, trigger)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}

	_, err = conn.ExecContext(ctx,
		"UPDATE issues SET status = ?, last_updated = ? WHERE id = ?", to, at, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// loadTransitions returns an issue's history ordered oldest first
func (s *Store) loadTransitions(ctx context.Context, issueID string) ([]types.StateTransition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_status, to_status, timestamp, triggered_by
		FROM state_transitions WHERE issue_id = ? ORDER BY id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var history []types.StateTransition
	for rows.Next() {
		var from sql.NullString
		var tr types.StateTransition
		if err := rows.Scan(&from, &tr.To, &tr.Timestamp, &tr.Trigger); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if from.Valid {
			status := types.Status(from.String)
			tr.From = &status
		}
		history = append(history, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transitions: %w", err)
	}
	return history, nil
}

// scanner abstracts sql.Row and sql.Rows for scanIssue
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row scanner) (*types.Issue, error) {
	var issue types.Issue
	var externalID sql.NullInt64
	var labels string
	var relatedFiles string
	var staleSent int
	var closure sql.NullString

	err := row.Scan(&issue.ID, &externalID, &issue.Title, &issue.ErrorText, &issue.Source,
		&issue.File, &issue.Line, &issue.Severity, &issue.Category, &labels, &relatedFiles,
		&issue.Status, &issue.CreatedAt, &issue.LastUpdated, &staleSent, &closure)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}

	if externalID.Valid {
		issue.ExternalID = &externalID.Int64
	}
	if err := json.Unmarshal([]byte(labels), &issue.Labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	if err := json.Unmarshal([]byte(relatedFiles), &issue.RelatedFiles); err != nil {
		return nil, fmt.Errorf("failed to decode related files: %w", err)
	}
	issue.StaleReminderSent = staleSent != 0
	if closure.Valid && closure.String != "" {
		issue.Closure = &types.VerificationResult{}
		if err := json.Unmarshal([]byte(closure.String), issue.Closure); err != nil {
			return nil, fmt.Errorf("failed to decode closure record: %w", err)
		}
	}
	return &issue, nil
}
