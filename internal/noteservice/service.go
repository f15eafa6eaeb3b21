// Package noteservice owns the business rules between the HTTP layer and
// the store: id generation, timestamps, and title derivation.
package noteservice

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/den/internal/apperr"
	"github.com/starford/den/internal/models"
	"github.com/starford/den/internal/store"
)

// FallbackTitle is used when neither an explicit title nor content yields one.
const FallbackTitle = "Untitled"

var headingRe = regexp.MustCompile(`^#+\s*`)

// Service coordinates note operations against the store.
type Service struct {
	store *store.Store
}

// New creates a note service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateParams are the caller-supplied fields for a new note.
type CreateParams struct {
	Title   string
	Content string
	Pinned  bool
	Tags    []string
}

// UpdateParams carry a partial update; nil fields are left untouched.
type UpdateParams struct {
	Title   *string
	Content *string
	Pinned  *bool
	Tags    *[]string
}

// Create builds a fully-populated note and persists it. The title falls back
// to the first content line (heading markers stripped), then to
// FallbackTitle. Both timestamps are identical at creation.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Note, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = DeriveTitle(p.Content)
	}
	if title == "" {
		title = FallbackTitle
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	now := time.Now().UTC()
	n := &models.Note{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   p.Content,
		Pinned:    p.Pinned,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Get returns a note by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Note, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of notes plus the total matching count.
func (s *Service) List(ctx context.Context, opts store.ListOptions) ([]models.Note, int, error) {
	return s.store.List(ctx, opts)
}

// Update applies a partial update. When the update sets content without an
// explicit title and the existing title is empty, the title is re-derived
// from the new content. An explicit title, including the empty string, is
// honored as-is.
func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (*models.Note, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := store.UpdateFields{
		Pinned: p.Pinned,
		Tags:   p.Tags,
	}
	if p.Content != nil {
		fields.Content = p.Content
		if p.Title == nil && existing.Title == "" {
			derived := DeriveTitle(*p.Content)
			if derived == "" {
				derived = FallbackTitle
			}
			fields.Title = &derived
		}
	}
	if p.Title != nil {
		fields.Title = p.Title
	}

	return s.store.Update(ctx, id, fields)
}

// Delete removes a note and returns the pre-deletion note, so callers can
// tell connected clients which note disappeared.
func (s *Service) Delete(ctx context.Context, id string) (*models.Note, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperr.ErrNotFound
	}
	return n, nil
}

// DeriveTitle extracts a title from the first line of content, stripping
// leading Markdown heading markers and surrounding whitespace. Returns the
// empty string when the first line carries no text.
func DeriveTitle(content string) string {
	firstLine, _, _ := strings.Cut(content, "\n")
	return strings.TrimSpace(headingRe.ReplaceAllString(firstLine, ""))
}
