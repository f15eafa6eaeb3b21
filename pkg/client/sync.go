package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/den/internal/hub"
	"github.com/starford/den/internal/models"
)

const (
	// DefaultDebounce coalesces rapid edits into one save call.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultResumeWindow is how long a previously selected note stays
	// restorable after the app goes away.
	DefaultResumeWindow = 5 * time.Minute

	optimisticPrefix = "optimistic-"
	refreshLimit     = 200
)

// SyncEngine keeps a local note cache consistent with the server: reads are
// served from the cache, edits apply optimistically and persist through a
// per-note debounce, and streamed events reconcile by note id. The cache and
// the active-note selection survive restarts via a JSON file.
//
// Mutations never propagate a fault to the caller; failures log and degrade.
type SyncEngine struct {
	client       *Client
	cachePath    string
	debounce     time.Duration
	resumeWindow time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	notes    []models.Note
	activeID string
	activeAt time.Time
	queued   map[string]UpdateNote
	timers   map[string]*time.Timer
}

// SyncOption customizes a SyncEngine.
type SyncOption func(*SyncEngine)

// WithDebounce overrides the save debounce window.
func WithDebounce(d time.Duration) SyncOption {
	return func(s *SyncEngine) { s.debounce = d }
}

// WithResumeWindow overrides the active-note resume window.
func WithResumeWindow(d time.Duration) SyncOption {
	return func(s *SyncEngine) { s.resumeWindow = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) SyncOption {
	return func(s *SyncEngine) { s.logger = l }
}

// NewSyncEngine creates an engine backed by cachePath and restores any
// previously cached state. The active-note selection is only restored when
// it is younger than the resume window.
func NewSyncEngine(c *Client, cachePath string, opts ...SyncOption) *SyncEngine {
	s := &SyncEngine{
		client:       c,
		cachePath:    cachePath,
		debounce:     DefaultDebounce,
		resumeWindow: DefaultResumeWindow,
		logger:       slog.Default(),
		queued:       make(map[string]UpdateNote),
		timers:       make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.restore()
	return s
}

type cacheFile struct {
	Notes    []models.Note `json:"notes"`
	ActiveID string        `json:"active_id,omitempty"`
	ActiveAt time.Time     `json:"active_at,omitempty"`
}

func (s *SyncEngine) restore() {
	data, err := os.ReadFile(s.cachePath)
	if err != nil {
		return
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("sync: corrupt cache ignored", slog.String("path", s.cachePath))
		return
	}
	s.notes = f.Notes
	if f.ActiveID != "" && time.Since(f.ActiveAt) < s.resumeWindow {
		s.activeID = f.ActiveID
		s.activeAt = f.ActiveAt
	}
}

// persist writes the cache file. Callers hold s.mu.
func (s *SyncEngine) persist() {
	f := cacheFile{Notes: s.notes, ActiveID: s.activeID, ActiveAt: s.activeAt}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(s.cachePath, data, 0o600); err != nil {
		s.logger.Warn("sync: persist cache failed", slog.String("error", err.Error()))
	}
}

// Refresh replaces the cache with a full fetch from the server. This is also
// how a client catches up on events it missed while disconnected.
func (s *SyncEngine) Refresh(ctx context.Context) error {
	res, err := s.client.List(ctx, ListParams{Limit: refreshLimit})
	if err != nil {
		return fmt.Errorf("sync: refresh: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = res.Notes
	s.sortLocked()
	s.persist()
	return nil
}

// Notes returns a snapshot of the cached notes.
func (s *SyncEngine) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// ActiveNote returns the selected note, if any.
func (s *SyncEngine) ActiveNote() (*models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID == s.activeID {
			n := s.notes[i]
			return &n, true
		}
	}
	return nil, false
}

// SetActive records the selected note id; empty clears the selection.
func (s *SyncEngine) SetActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
	s.activeAt = time.Now()
	s.persist()
}

// Create inserts an optimistic note immediately and reconciles it to the
// server-assigned note on success. On failure the local fabrication is kept
// so the user's note is not lost.
func (s *SyncEngine) Create(ctx context.Context, n CreateNote) *models.Note {
	now := time.Now().UTC()
	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = "Untitled"
	}
	optimistic := models.Note{
		ID:        fmt.Sprintf("%s%d", optimisticPrefix, now.UnixNano()),
		Title:     title,
		Content:   n.Content,
		Pinned:    n.Pinned,
		Tags:      n.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if optimistic.Tags == nil {
		optimistic.Tags = []string{}
	}

	s.mu.Lock()
	s.notes = append([]models.Note{optimistic}, s.notes...)
	s.activeID = optimistic.ID
	s.activeAt = time.Now()
	s.persist()
	s.mu.Unlock()

	created, err := s.client.Create(ctx, n)
	if err != nil {
		s.logger.Warn("sync: create failed, keeping local note", slog.String("error", err.Error()))
		return &optimistic
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID == optimistic.ID {
			s.notes[i] = *created
			break
		}
	}
	if s.activeID == optimistic.ID {
		s.activeID = created.ID
	}
	s.sortLocked()
	s.persist()
	return created
}

// Save applies fields to the cached note immediately and schedules a
// debounced server update. A newer edit to the same note cancels and
// supersedes any in-flight debounce timer, and its fields are coalesced
// into the pending update.
func (s *SyncEngine) Save(id string, fields UpdateNote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notes {
		if s.notes[i].ID != id {
			continue
		}
		if fields.Title != nil {
			s.notes[i].Title = *fields.Title
		}
		if fields.Content != nil {
			s.notes[i].Content = *fields.Content
		}
		if fields.Pinned != nil {
			s.notes[i].Pinned = *fields.Pinned
		}
		if fields.Tags != nil {
			s.notes[i].Tags = *fields.Tags
		}
		s.notes[i].UpdatedAt = time.Now().UTC()
		break
	}
	s.persist()

	queued := s.queued[id]
	if fields.Title != nil {
		queued.Title = fields.Title
	}
	if fields.Content != nil {
		queued.Content = fields.Content
	}
	if fields.Pinned != nil {
		queued.Pinned = fields.Pinned
	}
	if fields.Tags != nil {
		queued.Tags = fields.Tags
	}
	s.queued[id] = queued

	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(s.debounce, func() { s.flush(id) })
}

// Flush immediately persists any pending debounced update for id.
func (s *SyncEngine) Flush(id string) {
	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.flush(id)
}

func (s *SyncEngine) flush(id string) {
	s.mu.Lock()
	fields, ok := s.queued[id]
	delete(s.queued, id)
	delete(s.timers, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	updated, err := s.client.Update(ctx, id, fields)
	if err != nil {
		s.logger.Warn("sync: save failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID == id {
			s.notes[i] = *updated
			break
		}
	}
	s.sortLocked()
	s.persist()
}

// Delete removes the note locally first, then from the server. A server
// failure only logs; the note stays gone locally.
func (s *SyncEngine) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	s.removeLocked(id)
	s.persist()
	s.mu.Unlock()

	if err := s.client.Delete(ctx, id); err != nil {
		s.logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

// ApplyEvent merges a streamed change event into the cache, joined by note
// id. A created event for an id that already exists is ignored so it cannot
// race the client's own optimistic create.
func (s *SyncEngine) ApplyEvent(ev hub.Event) {
	if ev.Note == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case hub.EventNoteCreated:
		for i := range s.notes {
			if s.notes[i].ID == ev.Note.ID {
				return
			}
		}
		s.notes = append([]models.Note{*ev.Note}, s.notes...)

	case hub.EventNoteUpdated:
		for i := range s.notes {
			if s.notes[i].ID == ev.Note.ID {
				s.notes[i] = *ev.Note
				break
			}
		}

	case hub.EventNoteDeleted:
		s.removeLocked(ev.Note.ID)

	default:
		return
	}

	s.sortLocked()
	s.persist()
}

// removeLocked drops a note and clears the selection if it pointed there.
// Callers hold s.mu.
func (s *SyncEngine) removeLocked(id string) {
	for i := range s.notes {
		if s.notes[i].ID == id {
			s.notes = append(s.notes[:i], s.notes[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	delete(s.queued, id)
}

// sortLocked keeps the cache in server order: pinned first, then most
// recently updated. Callers hold s.mu.
func (s *SyncEngine) sortLocked() {
	sort.SliceStable(s.notes, func(i, j int) bool {
		if s.notes[i].Pinned != s.notes[j].Pinned {
			return s.notes[i].Pinned
		}
		return s.notes[i].UpdatedAt.After(s.notes[j].UpdatedAt)
	})
}
