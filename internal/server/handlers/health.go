package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/labsync/internal/server/response"
	"github.com/agentstation/labsync/pkg/connection"
)

// HandleHealth handles GET /api/v1/health (liveness).
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "labsync-relay",
		"version": "v1",
		"uptime":  time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HandleReady handles GET /api/v1/ready. The relay is ready once the lab
// subscription is connected.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	st := h.client.Status()
	if st.State != connection.Connected {
		response.ServiceUnavailable(w, "Lab subscription is "+st.State.String())
		return
	}

	response.OK(w, map[string]any{
		"status":     "ready",
		"connection": StatusView(st),
		"cache": map[string]any{
			"items": h.cache.ItemCount(),
		},
		"websocket_clients": h.wsHub.ClientCount(),
		"sse_clients":       h.sseBroadcaster.ClientCount(),
	})
}
