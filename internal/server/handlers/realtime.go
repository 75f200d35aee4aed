package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/labsync/internal/events"
	ws "github.com/agentstation/labsync/internal/server/websocket"
)

// HandleWebSocket handles WebSocket connections at /api/v1/updates/ws. The
// first message carries the current snapshot; later messages are relayed
// events. Clients may send {"type":"refresh"}.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	hello := &ws.Message{
		Type:      string(events.ClientConnected),
		Timestamp: time.Now(),
		Data:      h.client.Snapshot(),
	}
	if err := h.wsHub.Serve(h.upgrader, w, r, hello); err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
	}
}

// HandleSSE handles Server-Sent Events at /api/v1/updates/stream.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
