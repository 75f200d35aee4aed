package preferences

// Patches carry only the fields a caller wants to change. A nil field keeps
// the current value. Apply merges one level deep: each named group is merged
// field by field and untouched groups are kept as they are.

// NotificationSettingsPatch is a partial NotificationSettings.
type NotificationSettingsPatch struct {
	Toasts *ToastSettingsPatch `json:"toasts,omitempty"`
	Bell   *BellSettingsPatch  `json:"bell,omitempty"`
}

// ToastSettingsPatch is a partial ToastSettings.
type ToastSettingsPatch struct {
	Enabled         *bool   `json:"enabled,omitempty"`
	Position        *string `json:"position,omitempty"`
	Duration        *int    `json:"duration,omitempty"`
	ShowJobStart    *bool   `json:"show_job_start,omitempty"`
	ShowJobComplete *bool   `json:"show_job_complete,omitempty"`
	ShowJobFailed   *bool   `json:"show_job_failed,omitempty"`
	ShowJobRetry    *bool   `json:"show_job_retry,omitempty"`
	ShowImageSync   *bool   `json:"show_image_sync,omitempty"`
	ShowSyncJobs    *bool   `json:"show_sync_jobs,omitempty"`
}

// BellSettingsPatch is a partial BellSettings.
type BellSettingsPatch struct {
	Enabled         *bool `json:"enabled,omitempty"`
	MaxHistory      *int  `json:"max_history,omitempty"`
	SoundEnabled    *bool `json:"sound_enabled,omitempty"`
	ShowJobStart    *bool `json:"show_job_start,omitempty"`
	ShowJobComplete *bool `json:"show_job_complete,omitempty"`
	ShowJobFailed   *bool `json:"show_job_failed,omitempty"`
	ShowJobRetry    *bool `json:"show_job_retry,omitempty"`
	ShowImageSync   *bool `json:"show_image_sync,omitempty"`
	ShowSyncJobs    *bool `json:"show_sync_jobs,omitempty"`
}

// CanvasSettingsPatch is a partial CanvasSettings.
type CanvasSettingsPatch struct {
	ErrorIndicator       *ErrorIndicatorPatch `json:"error_indicator,omitempty"`
	ShowAgentIndicators  *bool                `json:"show_agent_indicators,omitempty"`
	ConsoleInBottomPanel *bool                `json:"console_in_bottom_panel,omitempty"`
	SidebarFilters       *SidebarFiltersPatch `json:"sidebar_filters,omitempty"`
}

// ErrorIndicatorPatch is a partial ErrorIndicatorSettings.
type ErrorIndicatorPatch struct {
	ShowIcon       *bool `json:"show_icon,omitempty"`
	ShowBorder     *bool `json:"show_border,omitempty"`
	PulseAnimation *bool `json:"pulse_animation,omitempty"`
}

// SidebarFiltersPatch is a partial SidebarFilterSettings.
type SidebarFiltersPatch struct {
	ShowRunning *bool `json:"show_running,omitempty"`
	ShowStopped *bool `json:"show_stopped,omitempty"`
	ShowErrored *bool `json:"show_errored,omitempty"`
}

// Apply returns s with the patch merged in.
func (p NotificationSettingsPatch) Apply(s NotificationSettings) NotificationSettings {
	if p.Toasts != nil {
		s.Toasts = p.Toasts.Apply(s.Toasts)
	}
	if p.Bell != nil {
		s.Bell = p.Bell.Apply(s.Bell)
	}
	return s
}

// Apply returns t with the patch merged in.
func (p ToastSettingsPatch) Apply(t ToastSettings) ToastSettings {
	set(&t.Enabled, p.Enabled)
	set(&t.Position, p.Position)
	set(&t.Duration, p.Duration)
	set(&t.ShowJobStart, p.ShowJobStart)
	set(&t.ShowJobComplete, p.ShowJobComplete)
	set(&t.ShowJobFailed, p.ShowJobFailed)
	set(&t.ShowJobRetry, p.ShowJobRetry)
	set(&t.ShowImageSync, p.ShowImageSync)
	set(&t.ShowSyncJobs, p.ShowSyncJobs)
	return t
}

// Apply returns b with the patch merged in.
func (p BellSettingsPatch) Apply(b BellSettings) BellSettings {
	set(&b.Enabled, p.Enabled)
	set(&b.MaxHistory, p.MaxHistory)
	set(&b.SoundEnabled, p.SoundEnabled)
	set(&b.ShowJobStart, p.ShowJobStart)
	set(&b.ShowJobComplete, p.ShowJobComplete)
	set(&b.ShowJobFailed, p.ShowJobFailed)
	set(&b.ShowJobRetry, p.ShowJobRetry)
	set(&b.ShowImageSync, p.ShowImageSync)
	set(&b.ShowSyncJobs, p.ShowSyncJobs)
	return b
}

// Apply returns c with the patch merged in.
func (p CanvasSettingsPatch) Apply(c CanvasSettings) CanvasSettings {
	if p.ErrorIndicator != nil {
		set(&c.ErrorIndicator.ShowIcon, p.ErrorIndicator.ShowIcon)
		set(&c.ErrorIndicator.ShowBorder, p.ErrorIndicator.ShowBorder)
		set(&c.ErrorIndicator.PulseAnimation, p.ErrorIndicator.PulseAnimation)
	}
	if p.SidebarFilters != nil {
		set(&c.SidebarFilters.ShowRunning, p.SidebarFilters.ShowRunning)
		set(&c.SidebarFilters.ShowStopped, p.SidebarFilters.ShowStopped)
		set(&c.SidebarFilters.ShowErrored, p.SidebarFilters.ShowErrored)
	}
	set(&c.ShowAgentIndicators, p.ShowAgentIndicators)
	set(&c.ConsoleInBottomPanel, p.ConsoleInBottomPanel)
	return c
}

// Empty reports whether the patch changes nothing.
func (p NotificationSettingsPatch) Empty() bool {
	return p.Toasts == nil && p.Bell == nil
}

// Empty reports whether the patch changes nothing.
func (p CanvasSettingsPatch) Empty() bool {
	return p.ErrorIndicator == nil && p.SidebarFilters == nil &&
		p.ShowAgentIndicators == nil && p.ConsoleInBottomPanel == nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T {
	return &v
}
