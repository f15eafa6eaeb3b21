package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/starford/den/internal/api"
	"github.com/starford/den/internal/apperr"
	"github.com/starford/den/internal/hub"
	"github.com/starford/den/internal/noteservice"
	"github.com/starford/den/internal/testutil"
)

const testToken = "client-secret"

// testClient stands up a real server stack and points a Client at it.
func testClient(t *testing.T) *Client {
	t.Helper()

	st := testutil.TestStore(t)
	h := hub.New()
	t.Cleanup(h.Close)

	srv := httptest.NewServer(api.NewRouter(noteservice.New(st), h, testToken))
	t.Cleanup(srv.Close)

	return New(Config{ServerURL: srv.URL, Token: testToken})
}

func TestClientCRUD(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	created, err := c.Create(ctx, CreateNote{Content: "# First\n\nbody", Tags: []string{"inbox"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "First" {
		t.Errorf("title = %q", created.Title)
	}

	got, err := c.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "# First\n\nbody" {
		t.Errorf("content = %q", got.Content)
	}

	newTitle := "Renamed"
	updated, err := c.Update(ctx, created.ID, UpdateNote{Title: &newTitle})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("title after update = %q", updated.Title)
	}

	res, err := c.List(ctx, ListParams{Search: "body"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 1 || len(res.Notes) != 1 {
		t.Fatalf("list total=%d len=%d", res.Total, len(res.Notes))
	}

	if err := c.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, created.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestClientErrorMapping(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note = %v, want ErrNotFound", err)
	}

	bad := New(Config{ServerURL: c.cfg.ServerURL, Token: "wrong"})
	if _, err := bad.Get(ctx, "anything"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("bad token = %v, want ErrUnauthorized", err)
	}
}

func TestClientHealthSkipsAuth(t *testing.T) {
	c := testClient(t)
	c.cfg.Token = ""

	h, err := c.GetHealth(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !h.OK {
		t.Error("expected ok=true")
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		server string
		token  string
		want   string
	}{
		{"http://localhost:7745", "abc", "ws://localhost:7745/ws?token=abc"},
		{"https://den.example.com/", "s3cr3t", "wss://den.example.com/ws?token=s3cr3t"},
		{"http://localhost:7745", "a b", "ws://localhost:7745/ws?token=a+b"},
	}
	for _, tt := range tests {
		c := New(Config{ServerURL: tt.server, Token: tt.token})
		if got := c.WebSocketURL(); got != tt.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
}
