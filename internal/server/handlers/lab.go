package handlers

import (
	"net/http"

	"github.com/agentstation/labsync/internal/server/cache"
	"github.com/agentstation/labsync/internal/server/filter"
	"github.com/agentstation/labsync/internal/server/response"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/projection"
)

// HandleLab handles GET /api/v1/lab: the lab, node and link snapshot.
func (h *Handlers) HandleLab(w http.ResponseWriter, _ *http.Request) {
	snap := cache.Remember(h.cache, LabCacheKey, h.client.Snapshot)
	response.OK(w, snap)
}

// HandleStatus handles GET /api/v1/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := h.client.Snapshot()
	response.OK(w, map[string]any{
		"connection":    StatusView(h.client.Status()),
		"lab":           snap.Lab,
		"nodes":         len(snap.Nodes),
		"links":         len(snap.Links),
		"messages":      snap.Messages,
		"unread":        h.client.Notifications().UnreadCount(),
		"active_toasts": len(h.client.Notifications().Toasts()),
	})
}

// HandleListNodes handles GET /api/v1/nodes. The running, stopped and
// errored buckets default to the user's sidebar filters.
func (h *Handlers) HandleListNodes(w http.ResponseWriter, r *http.Request) {
	sidebar := h.client.Preferences().CanvasSettings.SidebarFilters
	f := filter.ParseNodeFilter(r, sidebar)
	nodes := f.Apply(h.client.Nodes())
	response.OK(w, map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}

// HandleGetNode handles GET /api/v1/nodes/{id}.
func (h *Handlers) HandleGetNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, ok := h.client.Nodes()[id]
	if !ok {
		response.ErrorFromType(w, errors.NewNotFoundError("node", id))
		return
	}
	response.OK(w, struct {
		projection.NodeState
		Bucket string `json:"bucket"`
	}{n, filter.Bucket(n)})
}

// HandleListLinks handles GET /api/v1/links.
func (h *Handlers) HandleListLinks(w http.ResponseWriter, r *http.Request) {
	links := filter.ParseLinkFilter(r).Apply(h.client.Links())
	response.OK(w, map[string]any{
		"links": links,
		"count": len(links),
	})
}

// HandleRefresh handles POST /api/v1/refresh by asking the lab for a full
// state resend.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := h.client.Refresh(); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Accepted(w, map[string]any{"status": "refresh requested"})
}
