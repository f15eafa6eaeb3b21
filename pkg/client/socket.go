package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/den/internal/hub"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
	clientPingPeriod  = 30 * time.Second
)

// Listen connects to the server's streaming endpoint and merges pushed
// events into the cache until ctx is cancelled. The connection is fully
// recoverable: any failure backs off exponentially (capped) and reconnects
// indefinitely; the backoff resets once a connection opens. After each
// reconnect the cache is refreshed, since missed events are not replayed.
func (s *SyncEngine) Listen(ctx context.Context) {
	delay := minReconnectDelay
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.client.WebSocketURL(), nil)
		if err != nil {
			s.logger.Debug("sync: connect failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}
		delay = minReconnectDelay

		if !first {
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("sync: refresh after reconnect failed", slog.String("error", err.Error()))
			}
		}
		first = false

		s.readEvents(ctx, conn)
	}
}

// readEvents pumps one connection until it fails or ctx is cancelled.
func (s *SyncEngine) readEvents(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(clientPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Unblocks the read loop below.
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()
	defer close(done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(msg) == "pong" {
			continue
		}
		var ev hub.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		s.ApplyEvent(ev)
	}
}
