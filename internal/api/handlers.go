package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/den/internal/apperr"
	"github.com/starford/den/internal/hub"
	"github.com/starford/den/internal/noteservice"
	"github.com/starford/den/internal/store"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers. Every successful mutation pushes exactly
// one event through the hub.
type Handler struct {
	svc *noteservice.Service
	hub *hub.Hub
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, h *hub.Hub) *Handler {
	return &Handler{svc: svc, hub: h}
}

// Health handles GET /health (unauthenticated liveness check).
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true, Clients: h.hub.ClientCount()})
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	note, err := h.svc.Create(r.Context(), noteservice.CreateParams{
		Title:   req.Title,
		Content: *req.Content,
		Pinned:  req.Pinned,
		Tags:    req.Tags,
	})
	if err != nil {
		slog.Error("create note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	h.hub.Broadcast(hub.Event{Type: hub.EventNoteCreated, Note: note})
	writeJSON(w, http.StatusCreated, note)
}

// ListNotes handles GET /api/notes with pagination, pinned filter, and
// full-text search.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			offset = v
		}
	}
	var pinned *bool
	switch q.Get("pinned") {
	case "true":
		pinned = boolPtr(true)
	case "false":
		pinned = boolPtr(false)
	}
	search := strings.TrimSpace(q.Get("search"))

	notes, total, err := h.svc.List(r.Context(), store.ListOptions{
		Limit:  limit,
		Offset: offset,
		Pinned: pinned,
		Search: search,
	})
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: total})
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id}. The id is resolved before the
// body is read, so a malformed body on a nonexistent id still reports 404.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := chi.URLParam(r, "id")

	if _, err := h.svc.Get(r.Context(), id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	note, err := h.svc.Update(r.Context(), id, noteservice.UpdateParams{
		Title:   req.Title,
		Content: req.Content,
		Pinned:  req.Pinned,
		Tags:    req.Tags,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	h.hub.Broadcast(hub.Event{Type: hub.EventNoteUpdated, Note: note})
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	note, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	h.hub.Broadcast(hub.Event{Type: hub.EventNoteDeleted, Note: note})
	writeJSON(w, http.StatusOK, DeleteResponse{OK: true})
}

func boolPtr(b bool) *bool { return &b }
