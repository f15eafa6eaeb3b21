// Package hub implements a WebSocket fan-out hub for real-time note change
// notifications.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/den/internal/models"
)

// Event types pushed to connected clients.
const (
	EventNoteCreated = "note:created"
	EventNoteUpdated = "note:updated"
	EventNoteDeleted = "note:deleted"
)

// Event is a change notification. Note carries the full note; for deletes it
// is the pre-deletion note so clients can drop it from their lists.
type Event struct {
	Type string       `json:"type"`
	Note *models.Note `json:"note"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Hub manages WebSocket client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns the
// client set. Public methods communicate with this loop through channels,
// so no mutexes are required. Broadcast marshals the event once and never
// blocks on a slow client; a full client buffer is skipped.
type Hub struct {
	upgrader websocket.Upgrader

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	broadcastCh   chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a hub and starts its event loop.
func New() *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The HTTP surface is already origin-open (CORS *); the
			// shared token is the access control.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		broadcastCh:   make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)

	clients := make(map[chan []byte]struct{})

	for {
		select {
		case <-h.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-h.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-h.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-h.broadcastCh:
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("hub: marshal event failed", slog.String("error", err.Error()))
				continue
			}
			for ch := range clients {
				select {
				case ch <- payload:
				default:
					// Client buffer full; skip so one stuck
					// connection cannot stall the loop.
				}
			}

		case resp := <-h.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the event loop and closes all client channels.
func (h *Hub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped
}

// Subscribe registers a new client and returns its delivery channel.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, sendBuffer)
	if h.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case h.subscribeCh <- ch:
	case <-h.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel. Idempotent.
func (h *Hub) Unsubscribe(ch chan []byte) {
	if h.closed.Load() {
		return
	}
	select {
	case h.unsubscribeCh <- ch:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Broadcast sends an event to every connected client, best-effort. It never
// blocks the mutation path and never reports per-client failures.
func (h *Hub) Broadcast(event Event) {
	if h.closed.Load() {
		return
	}
	select {
	case h.broadcastCh <- event:
	case <-h.stopped:
	}
}

// ServeHTTP upgrades the connection and serves it until either side goes
// away. Credential checks happen before this handler runs.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error.
		return
	}
	h.serveConn(conn)
}

// serveConn runs a read loop and a write pump for one connection. The write
// pump is the sole writer: liveness probes from the read loop are routed
// through ackCh so text frames and protocol pings never interleave.
func (h *Hub) serveConn(conn *websocket.Conn) {
	defer conn.Close()

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	done := make(chan struct{})
	ackCh := make(chan struct{}, 1)

	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			if string(msg) == "ping" {
				select {
				case ackCh <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ackCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}

		case msg, ok := <-ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
