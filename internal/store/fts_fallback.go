//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/den/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search uses a LIKE scan over title and content.
	return nil
}

// searchList approximates the FTS5 prefix search with per-token LIKE
// matching over title and content. Tags are excluded, matching the FTS5
// build. The term has already been trimmed.
func (s *Store) searchList(ctx context.Context, term string, opts ListOptions) ([]models.Note, int, error) {
	var (
		conds []string
		args  []any
	)
	for _, tok := range strings.Fields(term) {
		conds = append(conds, "(title LIKE ? OR content LIKE ?)")
		like := "%" + tok + "%"
		args = append(args, like, like)
	}
	if opts.Pinned != nil {
		conds = append(conds, "pinned = ?")
		args = append(args, boolToInt(*opts.Pinned))
	}
	where := "WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count search: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, content, pinned, tags, created_at, updated_at
		FROM notes `+where+`
		ORDER BY pinned DESC, updated_at DESC
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
