// Package preferences defines the user preference aggregate shared by the
// notification router and the canvas, together with its fixed defaults and
// the partial updates applied by the settings synchronizer.
package preferences

import (
	"time"
)

// Toast positions.
const (
	PositionTopRight     = "top-right"
	PositionTopLeft      = "top-left"
	PositionBottomRight  = "bottom-right"
	PositionBottomLeft   = "bottom-left"
	PositionTopCenter    = "top-center"
	PositionBottomCenter = "bottom-center"
)

// UserPreferences is the full aggregate served by the remote preference store.
type UserPreferences struct {
	NotificationSettings NotificationSettings `json:"notification_settings" yaml:"notification_settings"`
	CanvasSettings       CanvasSettings       `json:"canvas_settings" yaml:"canvas_settings"`
}

// NotificationSettings configures both notification channels.
type NotificationSettings struct {
	Toasts ToastSettings `json:"toasts" yaml:"toasts"`
	Bell   BellSettings  `json:"bell" yaml:"bell"`
}

// ToastSettings configures the transient toast channel.
type ToastSettings struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Position string `json:"position" yaml:"position"`
	// Duration is the display time in milliseconds.
	Duration        int  `json:"duration" yaml:"duration"`
	ShowJobStart    bool `json:"show_job_start" yaml:"show_job_start"`
	ShowJobComplete bool `json:"show_job_complete" yaml:"show_job_complete"`
	ShowJobFailed   bool `json:"show_job_failed" yaml:"show_job_failed"`
	ShowJobRetry    bool `json:"show_job_retry" yaml:"show_job_retry"`
	ShowImageSync   bool `json:"show_image_sync" yaml:"show_image_sync"`
	ShowSyncJobs    bool `json:"show_sync_jobs" yaml:"show_sync_jobs"`
}

// DurationTime returns the toast display time.
func (t ToastSettings) DurationTime() time.Duration {
	return time.Duration(t.Duration) * time.Millisecond
}

// BellSettings configures the persistent bell history.
type BellSettings struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	MaxHistory      int  `json:"max_history" yaml:"max_history"`
	SoundEnabled    bool `json:"sound_enabled" yaml:"sound_enabled"`
	ShowJobStart    bool `json:"show_job_start" yaml:"show_job_start"`
	ShowJobComplete bool `json:"show_job_complete" yaml:"show_job_complete"`
	ShowJobFailed   bool `json:"show_job_failed" yaml:"show_job_failed"`
	ShowJobRetry    bool `json:"show_job_retry" yaml:"show_job_retry"`
	ShowImageSync   bool `json:"show_image_sync" yaml:"show_image_sync"`
	ShowSyncJobs    bool `json:"show_sync_jobs" yaml:"show_sync_jobs"`
}

// CanvasSettings configures the topology canvas.
type CanvasSettings struct {
	ErrorIndicator       ErrorIndicatorSettings `json:"error_indicator" yaml:"error_indicator"`
	ShowAgentIndicators  bool                   `json:"show_agent_indicators" yaml:"show_agent_indicators"`
	ConsoleInBottomPanel bool                   `json:"console_in_bottom_panel" yaml:"console_in_bottom_panel"`
	SidebarFilters       SidebarFilterSettings  `json:"sidebar_filters" yaml:"sidebar_filters"`
}

// ErrorIndicatorSettings controls how failed nodes are highlighted.
type ErrorIndicatorSettings struct {
	ShowIcon       bool `json:"show_icon" yaml:"show_icon"`
	ShowBorder     bool `json:"show_border" yaml:"show_border"`
	PulseAnimation bool `json:"pulse_animation" yaml:"pulse_animation"`
}

// SidebarFilterSettings selects which nodes the sidebar lists.
type SidebarFilterSettings struct {
	ShowRunning bool `json:"show_running" yaml:"show_running"`
	ShowStopped bool `json:"show_stopped" yaml:"show_stopped"`
	ShowErrored bool `json:"show_errored" yaml:"show_errored"`
}

// Defaults returns the fixed preferences used when there is no session or the
// remote fetch fails. Every sub-field is populated.
func Defaults() UserPreferences {
	return UserPreferences{
		NotificationSettings: DefaultNotificationSettings(),
		CanvasSettings:       DefaultCanvasSettings(),
	}
}

// DefaultNotificationSettings returns the notification part of Defaults.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Toasts: ToastSettings{
			Enabled:         true,
			Position:        PositionBottomRight,
			Duration:        5000,
			ShowJobStart:    false,
			ShowJobComplete: true,
			ShowJobFailed:   true,
			ShowJobRetry:    true,
			ShowImageSync:   true,
			ShowSyncJobs:    false,
		},
		Bell: BellSettings{
			Enabled:         true,
			MaxHistory:      50,
			SoundEnabled:    false,
			ShowJobStart:    true,
			ShowJobComplete: true,
			ShowJobFailed:   true,
			ShowJobRetry:    true,
			ShowImageSync:   true,
			ShowSyncJobs:    true,
		},
	}
}

// DefaultCanvasSettings returns the canvas part of Defaults.
func DefaultCanvasSettings() CanvasSettings {
	return CanvasSettings{
		ErrorIndicator: ErrorIndicatorSettings{
			ShowIcon:       true,
			ShowBorder:     true,
			PulseAnimation: true,
		},
		ShowAgentIndicators:  false,
		ConsoleInBottomPanel: false,
		SidebarFilters: SidebarFilterSettings{
			ShowRunning: true,
			ShowStopped: true,
			ShowErrored: true,
		},
	}
}
