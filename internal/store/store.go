// Package store provides SQLite-backed note persistence with optional FTS5
// full-text search.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/den/internal/apperr"
	"github.com/starford/den/internal/models"
)

// MaxListLimit bounds page size regardless of what the client requests.
const MaxListLimit = 200

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	pinned     INTEGER NOT NULL DEFAULT 0,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_order ON notes(pinned DESC, updated_at DESC);
`

// Store wraps a sql.DB with note persistence operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// The notes table and its search index are kept in sync by the storage
// engine itself, so a row mutation and its index mutation are always one
// atomic unit.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// ListOptions controls pagination and filtering for List.
type ListOptions struct {
	Limit  int
	Offset int
	Pinned *bool  // nil means no pinned filter
	Search string // empty means no full-text search
}

// UpdateFields carries a partial update; nil fields are left untouched.
// ID and CreatedAt are never mutable.
type UpdateFields struct {
	Title   *string
	Content *string
	Pinned  *bool
	Tags    *[]string
}

// Create inserts a fully-populated note. Returns apperr.ErrAlreadyExists if
// the id is already taken.
func (s *Store) Create(ctx context.Context, n *models.Note) error {
	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return fmt.Errorf("store: marshal tags: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, pinned, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Title, n.Content, boolToInt(n.Pinned), string(tagsJSON),
		formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) && sqErr.Code == sqlite3.ErrConstraint {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("store: insert note: %w", err)
	}
	return nil
}

// Get returns the note with the given id, or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Note, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, title, content, pinned, tags, created_at, updated_at
		FROM notes WHERE id = ?
	`, id)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	return n, nil
}

// List returns a page of notes plus the total matching count. Ordering is
// always pinned first, then updated_at descending. Limit is clamped to
// MaxListLimit; a zero limit returns no notes but still a correct total.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.Note, int, error) {
	if opts.Limit > MaxListLimit {
		opts.Limit = MaxListLimit
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	if term := strings.TrimSpace(opts.Search); term != "" {
		return s.searchList(ctx, term, opts)
	}

	where := ""
	args := []any{}
	if opts.Pinned != nil {
		where = "WHERE pinned = ?"
		args = append(args, boolToInt(*opts.Pinned))
	}

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count notes: %w", err)
	}

	query := `
		SELECT id, title, content, pinned, tags, created_at, updated_at
		FROM notes ` + where + `
		ORDER BY pinned DESC, updated_at DESC
		LIMIT ? OFFSET ?`
	rows, err := s.conn.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	notes, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

// Update merges the provided fields onto the existing row inside one
// transaction, always refreshing updated_at. Returns apperr.ErrNotFound if
// the id does not exist.
func (s *Store) Update(ctx context.Context, id string, fields UpdateFields) (*models.Note, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	row := tx.QueryRowContext(ctx, `
		SELECT id, title, content, pinned, tags, created_at, updated_at
		FROM notes WHERE id = ?
	`, id)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("store: read existing: %w", err)
	}

	if fields.Title != nil {
		n.Title = *fields.Title
	}
	if fields.Content != nil {
		n.Content = *fields.Content
	}
	if fields.Pinned != nil {
		n.Pinned = *fields.Pinned
	}
	if fields.Tags != nil {
		n.Tags = *fields.Tags
	}
	n.UpdatedAt = time.Now().UTC()

	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return nil, fmt.Errorf("store: marshal tags: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, pinned = ?, tags = ?, updated_at = ?
		WHERE id = ?
	`, n.Title, n.Content, boolToInt(n.Pinned), string(tagsJSON), formatTime(n.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("store: update note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit update: %w", err)
	}
	return n, nil
}

// Delete removes the note row (and, through the schema triggers, its search
// index entry). Reports whether a row was actually removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete note: %w", err)
	}
	return affected > 0, nil
}

// matchQuery converts a raw search term into an FTS5 match expression:
// quotes are escaped, then each whitespace-separated token becomes a quoted
// prefix query. Tokens are implicitly ANDed by FTS5.
func matchQuery(term string) string {
	escaped := strings.ReplaceAll(term, `"`, `""`)
	tokens := strings.Fields(escaped)
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = `"` + tok + `"*`
	}
	return strings.Join(parts, " ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (*models.Note, error) {
	var (
		n         models.Note
		pinned    int
		tagsJSON  string
		createdAt string
		updatedAt string
	)
	if err := r.Scan(&n.ID, &n.Title, &n.Content, &pinned, &tagsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	n.Pinned = pinned != 0
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("store: decode tags: %w", err)
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	var err error
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: decode created_at: %w", err)
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("store: decode updated_at: %w", err)
	}
	return &n, nil
}

func collectNotes(rows *sql.Rows) ([]models.Note, error) {
	notes := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate notes: %w", err)
	}
	return notes, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts fractional-second timestamps and falls back to
// whole-second RFC 3339.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
