// Package audit records the broker session's phase transitions in the
// session_log table and serves them back for the status API.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// SessionEntry is one recorded phase transition.
type SessionEntry struct {
	ID        int64     `json:"id"`
	BootID    string    `json:"boot_id"`
	Phase     string    `json:"phase"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	BootID string // optional: one process lifetime
	Phase  string // optional
	Limit  int    // default 50, max 200
	Offset int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []SessionEntry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// Repository defines the session log operations.
type Repository interface {
	Create(ctx context.Context, entry *SessionEntry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts entry and sets its ID. CreatedAt defaults to now.
func (r *SQLiteRepository) Create(ctx context.Context, entry *SessionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO session_log (boot_id, phase, detail, created_at) VALUES (?, ?, ?, ?)`,
		entry.BootID, entry.Phase, nullableString(entry.Detail),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting session entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading session entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// nullableString maps "" to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.BootID != "" {
		conditions = append(conditions, "boot_id = ?")
		args = append(args, filter.BootID)
	}
	if filter.Phase != "" {
		conditions = append(conditions, "phase = ?")
		args = append(args, filter.Phase)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM session_log " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting session entries: %w", err)
	}

	query := "SELECT id, boot_id, phase, detail, created_at FROM session_log " + where + //nolint:gosec // as above
		" ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying session entries: %w", err)
	}
	defer rows.Close()

	entries := []SessionEntry{}
	for rows.Next() {
		var e SessionEntry
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.BootID, &e.Phase, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session entry: %w", err)
		}
		e.Detail = detail.String
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing session entry timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
