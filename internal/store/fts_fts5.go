//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/den/internal/models"
)

// The FTS index is an external-content table mirrored from the notes table
// by synchronous triggers, so row and index mutate in the same transaction.
// Tags are deliberately not indexed: search covers title and content only.
func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			content,
			content='notes',
			content_rowid='rowid'
		);

		CREATE TRIGGER IF NOT EXISTS notes_ai AFTER INSERT ON notes BEGIN
			INSERT INTO notes_fts(rowid, id, title, content)
			VALUES (new.rowid, new.id, new.title, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS notes_ad AFTER DELETE ON notes BEGIN
			INSERT INTO notes_fts(notes_fts, rowid, id, title, content)
			VALUES ('delete', old.rowid, old.id, old.title, old.content);
		END;

		CREATE TRIGGER IF NOT EXISTS notes_au AFTER UPDATE ON notes BEGIN
			INSERT INTO notes_fts(notes_fts, rowid, id, title, content)
			VALUES ('delete', old.rowid, old.id, old.title, old.content);
			INSERT INTO notes_fts(rowid, id, title, content)
			VALUES (new.rowid, new.id, new.title, new.content);
		END;
	`)
	return err
}

// searchList runs an FTS5 prefix search combined with the pinned filter and
// the usual pinned-first ordering. The term has already been trimmed.
func (s *Store) searchList(ctx context.Context, term string, opts ListOptions) ([]models.Note, int, error) {
	match := matchQuery(term)

	where := ""
	args := []any{match}
	if opts.Pinned != nil {
		where = "AND n.pinned = ?"
		args = append(args, boolToInt(*opts.Pinned))
	}

	var total int
	if err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notes n
		JOIN notes_fts f ON n.rowid = f.rowid
		WHERE notes_fts MATCH ? `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count search: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT n.id, n.title, n.content, n.pinned, n.tags, n.created_at, n.updated_at
		FROM notes n
		JOIN notes_fts f ON n.rowid = f.rowid
		WHERE notes_fts MATCH ? `+where+`
		ORDER BY n.pinned DESC, n.updated_at DESC
		LIMIT ? OFFSET ?
	`, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	notes, err := collectNotes(rows)
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}
