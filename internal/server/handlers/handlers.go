// Package handlers provides HTTP request handlers for the labsync relay.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/labsync"
	"github.com/agentstation/labsync/internal/server/cache"
	"github.com/agentstation/labsync/internal/server/sse"
	ws "github.com/agentstation/labsync/internal/server/websocket"
	"github.com/agentstation/labsync/pkg/connection"
	"github.com/agentstation/labsync/pkg/errors"
)

// LabCacheKey is the cache key of the lab snapshot.
const LabCacheKey = "lab"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	client         labsync.Client
	cache          *cache.Cache
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       *websocket.Upgrader
	logger         *zerolog.Logger
	startTime      time.Time
}

// New creates a new Handlers instance.
func New(
	client labsync.Client,
	cache *cache.Cache,
	wsHub *ws.Hub,
	sseBroadcaster *sse.Broadcaster,
	upgrader *websocket.Upgrader,
	logger *zerolog.Logger,
	startTime time.Time,
) *Handlers {
	return &Handlers{
		client:         client,
		cache:          cache,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader:       upgrader,
		logger:         logger,
		startTime:      startTime,
	}
}

// StatusView is the wire form of a connection status. The last error is
// flattened to a string.
func StatusView(st connection.Status) map[string]any {
	v := map[string]any{
		"state":   st.State,
		"attempt": st.Attempt,
		"since":   st.Since,
	}
	if st.Resource != "" {
		v["lab_id"] = st.Resource
	}
	if st.LastError != nil {
		v["last_error"] = st.LastError.Error()
	}
	if !st.NextRetry.IsZero() {
		v["next_retry"] = st.NextRetry
		v["delay"] = st.Delay.String()
	}
	return v
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewParseError("json", "request body", "invalid request body", err)
	}
	return nil
}
