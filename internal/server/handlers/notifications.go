package handlers

import (
	"net/http"
	"time"

	"github.com/agentstation/labsync/internal/server/response"
	"github.com/agentstation/labsync/pkg/notify"
)

// notificationRequest is the body of POST /api/v1/notifications.
type notificationRequest struct {
	Level    string `json:"level"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
	// DurationMS overrides the toast duration.
	DurationMS int `json:"duration_ms,omitempty"`
}

// HandleListNotifications handles GET /api/v1/notifications.
func (h *Handlers) HandleListNotifications(w http.ResponseWriter, _ *http.Request) {
	router := h.client.Notifications()
	response.OK(w, map[string]any{
		"items":  router.History(),
		"unread": router.UnreadCount(),
	})
}

// HandleCreateNotification handles POST /api/v1/notifications. A duplicate
// within the dedup window is acknowledged with created=false.
func (h *Handlers) HandleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if req.Level == "" {
		req.Level = string(notify.LevelInfo)
	}
	level, err := notify.ParseLevel(req.Level)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if req.Title == "" {
		response.BadRequest(w, "Title is required", "")
		return
	}

	var opts []notify.Option
	if req.Category != "" {
		opts = append(opts, notify.WithCategory(req.Category))
	}
	if req.DurationMS > 0 {
		opts = append(opts, notify.WithDuration(time.Duration(req.DurationMS)*time.Millisecond))
	}

	n, created := h.client.Notify(level, req.Title, req.Message, opts...)
	if !created {
		response.OK(w, map[string]any{"created": false})
		return
	}
	response.JSON(w, http.StatusCreated, response.Success(map[string]any{
		"created":      true,
		"notification": n,
	}))
}

// HandleMarkAllRead handles POST /api/v1/notifications/read.
func (h *Handlers) HandleMarkAllRead(w http.ResponseWriter, _ *http.Request) {
	h.client.Notifications().MarkAllAsRead()
	response.NoContent(w)
}

// HandleMarkRead handles POST /api/v1/notifications/{id}/read.
func (h *Handlers) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Notifications().MarkAsRead(r.PathValue("id")); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.NoContent(w)
}

// HandleClearNotifications handles DELETE /api/v1/notifications.
func (h *Handlers) HandleClearNotifications(w http.ResponseWriter, _ *http.Request) {
	h.client.Notifications().ClearNotifications()
	response.NoContent(w)
}

// HandleListToasts handles GET /api/v1/toasts.
func (h *Handlers) HandleListToasts(w http.ResponseWriter, _ *http.Request) {
	router := h.client.Notifications()
	response.OK(w, map[string]any{
		"items":    router.Toasts(),
		"position": router.Settings().Toasts.Position,
	})
}

// HandleDismissToast handles DELETE /api/v1/toasts/{id}.
func (h *Handlers) HandleDismissToast(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Notifications().DismissToast(r.PathValue("id")); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.NoContent(w)
}
