package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/den/internal/apperr"
	"github.com/starford/den/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	f, err := os.CreateTemp("", "den-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	st, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func makeNote(title, content string, pinned bool, updatedAt time.Time) *models.Note {
	return &models.Note{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		Pinned:    pinned,
		Tags:      []string{},
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	n := &models.Note{
		ID:        uuid.NewString(),
		Title:     "Hello",
		Content:   "# Hello\nWorld",
		Pinned:    true,
		Tags:      []string{"a", "b", "a"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.Create(ctx, n); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := st.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != n.ID || got.Title != n.Title || got.Content != n.Content || !got.Pinned {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Tags) != 3 || got.Tags[0] != "a" || got.Tags[2] != "a" {
		t.Errorf("tags = %v, want ordered duplicates preserved", got.Tags)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, now)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	n := makeNote("dup", "x", false, time.Now().UTC())
	if err := st.Create(ctx, n); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := st.Create(ctx, n); err != apperr.ErrAlreadyExists {
		t.Errorf("second create = %v, want ErrAlreadyExists", err)
	}
}

func TestGetNotFound(t *testing.T) {
	st := testStore(t)
	if _, err := st.Get(context.Background(), "missing"); err != apperr.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListOrderingPinnedFirst(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	old := makeNote("old", "", false, base)
	newer := makeNote("newer", "", false, base.Add(10*time.Minute))
	pinnedOld := makeNote("pinned-old", "", true, base.Add(-10*time.Minute))
	pinnedNew := makeNote("pinned-new", "", true, base.Add(5*time.Minute))
	for _, n := range []*models.Note{old, newer, pinnedOld, pinnedNew} {
		if err := st.Create(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	notes, total, err := st.List(ctx, ListOptions{Limit: 50})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	wantOrder := []string{"pinned-new", "pinned-old", "newer", "old"}
	for i, title := range wantOrder {
		if notes[i].Title != title {
			t.Errorf("notes[%d] = %q, want %q", i, notes[i].Title, title)
		}
	}
}

func TestListLimitClampAndZero(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := st.Create(ctx, makeNote("n", "", false, time.Now().UTC())); err != nil {
			t.Fatal(err)
		}
	}

	// Zero limit returns no notes but the correct total.
	notes, total, err := st.List(ctx, ListOptions{Limit: 0})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 0 || total != 5 {
		t.Errorf("limit=0: len=%d total=%d, want 0/5", len(notes), total)
	}

	// Oversized limit is clamped, which is only observable as not failing
	// here; the clamp itself is exercised against MaxListLimit.
	if _, _, err := st.List(ctx, ListOptions{Limit: MaxListLimit + 500}); err != nil {
		t.Fatalf("oversized limit: %v", err)
	}

	// Large offset returns empty, not an error.
	notes, total, err = st.List(ctx, ListOptions{Limit: 10, Offset: 100000})
	if err != nil {
		t.Fatalf("large offset: %v", err)
	}
	if len(notes) != 0 || total != 5 {
		t.Errorf("large offset: len=%d total=%d, want 0/5", len(notes), total)
	}
}

func TestListPinnedFilter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_ = st.Create(ctx, makeNote("p", "", true, time.Now().UTC()))
	_ = st.Create(ctx, makeNote("u", "", false, time.Now().UTC()))

	pinned := true
	notes, total, err := st.List(ctx, ListOptions{Limit: 10, Pinned: &pinned})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(notes) != 1 || notes[0].Title != "p" {
		t.Errorf("pinned filter: %+v total=%d", notes, total)
	}

	pinned = false
	notes, total, _ = st.List(ctx, ListOptions{Limit: 10, Pinned: &pinned})
	if total != 1 || len(notes) != 1 || notes[0].Title != "u" {
		t.Errorf("unpinned filter: %+v total=%d", notes, total)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Minute)
	n := makeNote("title", "content", false, created)
	n.Tags = []string{"keep"}
	if err := st.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	newContent := "changed"
	updated, err := st.Update(ctx, n.ID, UpdateFields{Content: &newContent})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "changed" {
		t.Errorf("content = %q", updated.Content)
	}
	if updated.Title != "title" || !eqTags(updated.Tags, []string{"keep"}) || updated.Pinned {
		t.Errorf("untouched fields changed: %+v", updated)
	}
	if !updated.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("created_at mutated: %v", updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(n.UpdatedAt) {
		t.Errorf("updated_at did not advance: %v <= %v", updated.UpdatedAt, n.UpdatedAt)
	}

	// updated_at strictly increases across successive updates.
	again, err := st.Update(ctx, n.ID, UpdateFields{Content: &newContent})
	if err != nil {
		t.Fatal(err)
	}
	if !again.UpdatedAt.After(updated.UpdatedAt) {
		t.Errorf("updated_at not strictly increasing: %v <= %v", again.UpdatedAt, updated.UpdatedAt)
	}
}

func TestUpdateEmptyTitleHonored(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	n := makeNote("something", "c", false, time.Now().UTC())
	if err := st.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	empty := ""
	updated, err := st.Update(ctx, n.ID, UpdateFields{Title: &empty})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "" {
		t.Errorf("explicit empty title not honored: %q", updated.Title)
	}
}

func TestUpdateNotFound(t *testing.T) {
	st := testStore(t)
	title := "x"
	if _, err := st.Update(context.Background(), "missing", UpdateFields{Title: &title}); err != apperr.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentUpdatesBothSucceed(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	n := makeNote("t", "v0", false, time.Now().UTC())
	if err := st.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 2)
	for _, v := range []string{"v1", "v2"} {
		v := v
		go func() {
			_, err := st.Update(ctx, n.ID, UpdateFields{Content: &v})
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent update: %v", err)
		}
	}

	got, err := st.Get(ctx, n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "v1" && got.Content != "v2" {
		t.Errorf("content = %q, want one of the two writes", got.Content)
	}
}

func TestDeleteTwice(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	n := makeNote("bye", "", false, time.Now().UTC())
	if err := st.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	removed, err := st.Delete(ctx, n.ID)
	if err != nil || !removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}
	removed, err = st.Delete(ctx, n.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if removed {
		t.Error("second delete reported a removed row")
	}
}

func TestSearchMatchesTitleAndContent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_ = st.Create(ctx, makeNote("Grocery list", "milk eggs bread", false, time.Now().UTC()))
	_ = st.Create(ctx, makeNote("Meeting notes", "quarterly planning", false, time.Now().UTC()))

	notes, total, err := st.List(ctx, ListOptions{Limit: 10, Search: "grocery"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(notes) != 1 || notes[0].Title != "Grocery list" {
		t.Errorf("title search: %+v total=%d", notes, total)
	}

	notes, total, _ = st.List(ctx, ListOptions{Limit: 10, Search: "quarterly"})
	if total != 1 || len(notes) != 1 || notes[0].Title != "Meeting notes" {
		t.Errorf("content search: %+v total=%d", notes, total)
	}
}

func TestSearchTermsAreANDed(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_ = st.Create(ctx, makeNote("both", "alpha beta", false, time.Now().UTC()))
	_ = st.Create(ctx, makeNote("one", "alpha only", false, time.Now().UTC()))

	_, total, err := st.List(ctx, ListOptions{Limit: 10, Search: "alpha beta"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1 (terms must AND)", total)
	}
}

func TestSearchExcludesTags(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	n := makeNote("plain", "nothing special", false, time.Now().UTC())
	n.Tags = []string{"zanzibar"}
	if err := st.Create(ctx, n); err != nil {
		t.Fatal(err)
	}

	notes, total, err := st.List(ctx, ListOptions{Limit: 10, Search: "zanzibar"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 0 || len(notes) != 0 {
		t.Errorf("tag-only term matched: %+v total=%d", notes, total)
	}
}

func TestSearchComposesWithPinnedFilter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_ = st.Create(ctx, makeNote("pinned hit", "shared term", true, time.Now().UTC()))
	_ = st.Create(ctx, makeNote("loose hit", "shared term", false, time.Now().UTC()))

	pinned := true
	notes, total, err := st.List(ctx, ListOptions{Limit: 10, Search: "shared", Pinned: &pinned})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(notes) != 1 || notes[0].Title != "pinned hit" {
		t.Errorf("search+pinned: %+v total=%d", notes, total)
	}
}

func TestSearchQuoteInjectionIsEscaped(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_ = st.Create(ctx, makeNote("quoted", `he said "hello"`, false, time.Now().UTC()))

	// Must not produce a syntax error, whatever it matches.
	if _, _, err := st.List(ctx, ListOptions{Limit: 10, Search: `"hello" OR x`}); err != nil {
		t.Errorf("quoted search errored: %v", err)
	}
}

func TestMatchQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello", `"hello"*`},
		{"hello world", `"hello"* "world"*`},
		{`say "hi"`, `"say"* """hi"""*`},
	}
	for _, c := range cases {
		if got := matchQuery(c.in); got != c.want {
			t.Errorf("matchQuery(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func eqTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
