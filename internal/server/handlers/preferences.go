package handlers

import (
	"net/http"

	"github.com/agentstation/labsync/internal/server/response"
	"github.com/agentstation/labsync/pkg/preferences"
)

// preferencesPatch is the body of PATCH /api/v1/preferences.
type preferencesPatch struct {
	NotificationSettings *preferences.NotificationSettingsPatch `json:"notification_settings,omitempty"`
	CanvasSettings       *preferences.CanvasSettingsPatch       `json:"canvas_settings,omitempty"`
}

// HandleGetPreferences handles GET /api/v1/preferences.
func (h *Handlers) HandleGetPreferences(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.client.Preferences())
}

// HandlePatchPreferences handles PATCH /api/v1/preferences.
//
// Changes apply locally before the lab API answers. saved reports whether
// the lab API accepted them; a failed save keeps the local value.
func (h *Handlers) HandlePatchPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesPatch
	if err := decodeJSON(w, r, &req); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if req.NotificationSettings == nil && req.CanvasSettings == nil {
		response.BadRequest(w, "Nothing to update", "provide notification_settings or canvas_settings")
		return
	}

	if req.NotificationSettings != nil {
		merged := req.NotificationSettings.Apply(h.client.Preferences().NotificationSettings)
		if err := merged.Validate(); err != nil {
			response.ErrorFromType(w, err)
			return
		}
	}

	ctx := r.Context()
	var syncErr error
	if req.NotificationSettings != nil {
		syncErr = h.client.UpdateNotificationSettings(ctx, *req.NotificationSettings)
	}
	if req.CanvasSettings != nil {
		if err := h.client.UpdateCanvasSettings(ctx, *req.CanvasSettings); err != nil && syncErr == nil {
			syncErr = err
		}
	}

	body := map[string]any{
		"preferences": h.client.Preferences(),
		"saved":       syncErr == nil,
	}
	if syncErr != nil {
		h.logger.Warn().Err(syncErr).Msg("Preferences applied locally but not saved")
		body["sync_error"] = syncErr.Error()
	}
	response.OK(w, body)
}
