package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/r3e-network/objectstore/access"
	"github.com/r3e-network/objectstore/store"
)

// upgrader accepts any origin: the connection is already authenticated by
// access.Middleware's bearer-token check before the upgrade happens, so
// browser-origin restriction would add no security here. Grounded on
// monitor-webui/main.go's websocket.Upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	subscribeWriteTimeout = 10 * time.Second
	subscribeBacklog      = 64
	subscribePingPeriod   = 30 * time.Second
)

// handleSubscribe upgrades to a WebSocket and bridges every ChangeEvent
// notify.Bus emits to the connected client — the "interface only" seam
// SPEC_FULL §1/§4.5 calls the dashboard/analytics layer out as a
// Non-goal feature but still needs a wire format to attach to; no
// per-caller visibility filtering happens here (ChangeEvent carries no
// ACL fields — that's deliberate, see notify package docs), so this
// endpoint is for trusted internal consumers, not arbitrary end users.
// Grounded on untoldecay-BeadsLog's monitor-webui/main.go
// upgrader/broadcast-channel pattern.
func (s *server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if _, ok := access.IdentityFromContext(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(r.Context(), "websocket upgrade failed", err, nil)
		return
	}
	defer conn.Close()

	outbox := make(chan store.ChangeEvent, subscribeBacklog)
	unsubscribe := s.bus.OnAll(func(ev store.ChangeEvent) {
		select {
		case outbox <- ev:
		default:
			// Slow consumer: drop rather than block the bus's emit path.
		}
	})
	defer unsubscribe()

	// Detect client disconnect (close frame or read error); the connection
	// sends nothing itself, so this goroutine only ever reads to notice
	// EOF/close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(subscribePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(subscribeWriteTimeout))
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(subscribeWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
