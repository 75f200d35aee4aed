package notify

import (
	"strings"

	"github.com/agentstation/labsync/pkg/preferences"
)

// Categories with a dedicated visibility flag.
const (
	CategoryJobStart    = "job-start"
	CategoryJobComplete = "job-complete"
	CategoryJobFailed   = "job-failed"
	CategoryJobRetry    = "job-retry"
	CategoryImageSync   = "image-sync"

	syncPrefix = "sync-"
	jobPrefix  = "job-"
)

// ChannelFilter is the filter configuration of one channel.
type ChannelFilter struct {
	Enabled         bool
	ShowJobStart    bool
	ShowJobComplete bool
	ShowJobFailed   bool
	ShowJobRetry    bool
	ShowImageSync   bool
	ShowSyncJobs    bool
}

// ToastFilter builds the toast channel filter.
func ToastFilter(s preferences.ToastSettings) ChannelFilter {
	return ChannelFilter{
		Enabled:         s.Enabled,
		ShowJobStart:    s.ShowJobStart,
		ShowJobComplete: s.ShowJobComplete,
		ShowJobFailed:   s.ShowJobFailed,
		ShowJobRetry:    s.ShowJobRetry,
		ShowImageSync:   s.ShowImageSync,
		ShowSyncJobs:    s.ShowSyncJobs,
	}
}

// BellFilter builds the bell channel filter.
func BellFilter(s preferences.BellSettings) ChannelFilter {
	return ChannelFilter{
		Enabled:         s.Enabled,
		ShowJobStart:    s.ShowJobStart,
		ShowJobComplete: s.ShowJobComplete,
		ShowJobFailed:   s.ShowJobFailed,
		ShowJobRetry:    s.ShowJobRetry,
		ShowImageSync:   s.ShowImageSync,
		ShowSyncJobs:    s.ShowSyncJobs,
	}
}

// Allows applies the category rules, ignoring Enabled.
//
// An empty category always passes. A "sync-" category needs ShowSyncJobs
// and is then matched as the corresponding "job-" category. The five job
// and image categories map to their flags; anything else passes.
func (f ChannelFilter) Allows(category string) bool {
	if category == "" {
		return true
	}
	if rest, ok := strings.CutPrefix(category, syncPrefix); ok {
		if !f.ShowSyncJobs {
			return false
		}
		category = jobPrefix + rest
	}
	switch category {
	case CategoryJobStart:
		return f.ShowJobStart
	case CategoryJobComplete:
		return f.ShowJobComplete
	case CategoryJobFailed:
		return f.ShowJobFailed
	case CategoryJobRetry:
		return f.ShowJobRetry
	case CategoryImageSync:
		return f.ShowImageSync
	default:
		return true
	}
}

// Accepts reports whether the channel is enabled and allows category.
func (f ChannelFilter) Accepts(category string) bool {
	return f.Enabled && f.Allows(category)
}
