// Package models defines the domain types for Den.
package models

import "time"

// Note is the sole persisted entity: a titled, tagged, pinnable piece of
// text content with creation and update timestamps. Content is opaque to the
// server; clients may store serialized rich documents in it.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
