package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/den/internal/hub"
	"github.com/starford/den/internal/noteservice"
)

// NewRouter creates a chi router with all routes mounted. Health, CORS
// preflight, and the WebSocket handshake sit outside the Bearer middleware;
// the handshake instead carries the token as a query parameter, since not
// every client runtime can attach headers to an upgrade request.
func NewRouter(svc *noteservice.Service, wsHub *hub.Hub, token string) chi.Router {
	h := NewHandler(svc, wsHub)

	r := chi.NewRouter()
	r.Use(CORSMiddleware)

	r.Get("/health", h.Health)
	r.Get("/ws", wsAuth(token, wsHub))

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(token))
		r.Post("/notes", h.CreateNote)
		r.Get("/notes", h.ListNotes)
		r.Get("/notes/{id}", h.GetNote)
		r.Put("/notes/{id}", h.UpdateNote)
		r.Delete("/notes/{id}", h.DeleteNote)
	})

	return r
}

// wsAuth validates the token query parameter before handing the request to
// the hub for upgrade. Same uniform rejection as the Bearer middleware.
func wsAuth(token string, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tokenEqual(r.URL.Query().Get("token"), token) {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	}
}
