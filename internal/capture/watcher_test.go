package capture

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/den/internal/models"
	"github.com/starford/den/internal/noteservice"
	"github.com/starford/den/internal/store"
	"github.com/starford/den/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startWatch(t *testing.T, st *store.Store, dir string) (*noteservice.Service, <-chan *models.Note, context.CancelFunc) {
	t.Helper()

	svc := noteservice.New(st)
	created := make(chan *models.Note, 8)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := Watch(ctx, svc, dir, discardLogger(), func(n *models.Note) {
			created <- n
		}); err != nil {
			t.Errorf("watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	return svc, created, cancel
}

func waitForNote(t *testing.T, ch <-chan *models.Note) *models.Note {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingested note")
		return nil
	}
}

func TestWatchIngestsDroppedFile(t *testing.T) {
	st := testutil.TestStore(t)
	dir := t.TempDir()
	svc, created, _ := startWatch(t, st, dir)

	path := filepath.Join(dir, "idea.md")
	if err := os.WriteFile(path, []byte("# Quick idea\n\nbody text"), 0o600); err != nil {
		t.Fatal(err)
	}

	note := waitForNote(t, created)
	if note.Title != "Quick idea" {
		t.Errorf("title = %q", note.Title)
	}

	got, err := svc.Get(context.Background(), note.ID)
	if err != nil {
		t.Fatalf("note not persisted: %v", err)
	}
	if got.Content != "# Quick idea\n\nbody text" {
		t.Errorf("content = %q", got.Content)
	}

	// The inbox file is consumed.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("inbox file was not removed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatchSweepsExistingFiles(t *testing.T) {
	st := testutil.TestStore(t)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "waiting.txt"), []byte("was already here"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, created, _ := startWatch(t, st, dir)

	note := waitForNote(t, created)
	if note.Content != "was already here" {
		t.Errorf("content = %q", note.Content)
	}
}

func TestWatchIgnoresOtherExtensions(t *testing.T) {
	st := testutil.TestStore(t)
	dir := t.TempDir()
	_, created, _ := startWatch(t, st, dir)

	if err := os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{0x00, 0x01}, 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case n := <-created:
		t.Fatalf("unexpected note from %q", n.Content)
	case <-time.After(settleDelay * 4):
	}
}

func TestCapturable(t *testing.T) {
	for name, want := range map[string]bool{
		"note.md":       true,
		"NOTE.MD":       true,
		"note.markdown": true,
		"note.txt":      true,
		"note.pdf":      false,
		"note":          false,
	} {
		if got := capturable(name); got != want {
			t.Errorf("capturable(%q) = %v, want %v", name, got, want)
		}
	}
}
