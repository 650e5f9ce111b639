package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded command.
type Entry struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Detail     string    `json:"detail,omitempty"`
	Source     string    `json:"source"`
	OK         bool      `json:"ok"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	Volume     string    `json:"volume"`
	Level      int       `json:"level"`
	Power      string    `json:"power"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Command string
	Source  string
	OK      *bool
	Since   time.Time
	Limit   int
	Offset  int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines command history storage.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the command_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e. ID and CreatedAt are filled when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Power == "" {
		e.Power = "unknown"
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_history
		 (id, command, detail, source, ok, error_kind, message, volume, level, power, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Command, e.Detail, e.Source, boolToInt(e.OK), e.ErrorKind, e.Message,
		e.Volume, e.Level, e.Power, e.DurationMS,
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command history: %w", err)
	}
	return nil
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.OK != nil {
		conditions = append(conditions, "ok = ?")
		args = append(args, boolToInt(*filter.OK))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_history " + where //nolint:gosec // conditions are placeholders only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command history: %w", err)
	}

	query := `SELECT id, command, detail, source, ok, error_kind, message, volume, level, power, duration_ms, created_at
		FROM command_history ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?` //nolint:gosec // conditions are placeholders only
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying command history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var ok int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Command, &e.Detail, &e.Source, &ok, &e.ErrorKind, &e.Message,
			&e.Volume, &e.Level, &e.Power, &e.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command history: %w", err)
		}
		e.OK = ok == 1
		e.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command history timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command history: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
