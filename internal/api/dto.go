package api

import "github.com/starford/den/internal/models"

// CreateNoteRequest is the request body for creating a note. Content is the
// only required field; a missing or mistyped content is a validation
// failure, not a server error.
type CreateNoteRequest struct {
	Title   string   `json:"title"`
	Content *string  `json:"content"`
	Pinned  bool     `json:"pinned"`
	Tags    []string `json:"tags"`
}

// UpdateNoteRequest is the request body for a partial update. Only fields
// explicitly present in the body are changed, so every field is a pointer.
type UpdateNoteRequest struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	Pinned  *bool     `json:"pinned"`
	Tags    *[]string `json:"tags"`
}

// NoteListResponse wraps paginated note listings with the total matching
// count for pagination UIs.
type NoteListResponse struct {
	Notes []models.Note `json:"notes"`
	Total int           `json:"total"`
}

// HealthResponse is the unauthenticated liveness payload.
type HealthResponse struct {
	OK      bool `json:"ok"`
	Clients int  `json:"clients"`
}

// DeleteResponse acknowledges a successful delete.
type DeleteResponse struct {
	OK bool `json:"ok"`
}
