// Package capture ingests files dropped into a watched inbox directory as
// notes. It exists for quick captures from scripts and editors that would
// rather write a file than speak HTTP.
package capture

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/den/internal/models"
	"github.com/starford/den/internal/noteservice"
)

// settleDelay debounces rapid write events while an editor is still
// streaming the file to disk.
const settleDelay = 200 * time.Millisecond

// CreatedCallback is called after a dropped file has become a note.
type CreatedCallback func(*models.Note)

// Watch starts an fsnotify watcher on dir and processes dropped files until
// ctx is cancelled. Each markdown or plain-text file is read, created as a
// note (title derived from the first line), removed from the inbox, and
// reported through cb (if non-nil).
func Watch(ctx context.Context, svc *noteservice.Service, dir string, logger *slog.Logger, cb CreatedCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("capture: started", slog.String("dir", dir))

	ing := &ingester{
		svc:     svc,
		logger:  logger,
		cb:      cb,
		pending: make(map[string]*time.Timer),
	}
	defer ing.stop()

	// Pick up files that were already waiting in the inbox.
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && capturable(e.Name()) {
				ing.schedule(ctx, filepath.Join(dir, e.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("capture: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !capturable(ev.Name) {
				continue
			}
			ing.schedule(ctx, ev.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("capture: watcher error", slog.String("error", err.Error()))
		}
	}
}

func capturable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// ingester debounces per-file timers and performs the actual ingest once a
// file has settled.
type ingester struct {
	svc    *noteservice.Service
	logger *slog.Logger
	cb     CreatedCallback

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// schedule (re)arms the settle timer for path. A newer event supersedes any
// timer already in flight.
func (g *ingester) schedule(ctx context.Context, path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.pending[path]; ok {
		t.Stop()
	}
	g.pending[path] = time.AfterFunc(settleDelay, func() {
		g.mu.Lock()
		delete(g.pending, path)
		g.mu.Unlock()
		g.ingest(ctx, path)
	})
}

func (g *ingester) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.pending {
		t.Stop()
	}
}

func (g *ingester) ingest(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// The file may have been removed between the event and the
		// timer firing.
		g.logger.Debug("capture: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	note, err := g.svc.Create(ctx, noteservice.CreateParams{Content: string(data)})
	if err != nil {
		g.logger.Warn("capture: create failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if err := os.Remove(path); err != nil {
		g.logger.Warn("capture: remove failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	g.logger.Info("capture: ingested",
		slog.String("path", path),
		slog.String("id", note.ID),
		slog.String("title", note.Title))

	if g.cb != nil {
		g.cb(note)
	}
}
