package labsync

import (
	"sync"

	"github.com/agentstation/labsync/pkg/connection"
	"github.com/agentstation/labsync/pkg/notify"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/projection"
)

// Hook function types for client-level events
type (
	// ConnectionStateHook is called after every connection status change
	ConnectionStateHook func(status connection.Status)

	// NotificationHook is called for every toast and bell change
	NotificationHook func(event notify.Event)

	// PreferencesHook is called with every new preference aggregate
	PreferencesHook func(prefs preferences.UserPreferences)
)

// Hooks registers callbacks for lab, connection, notification and
// preference events. Callbacks run on the goroutine that produced the
// event and must not block. A callback may call Connect or Disconnect; the
// subscription it runs on is then cancelled without waiting for its loop.
type Hooks interface {
	OnNodeState(fn projection.NodeStateHook)
	OnLinkState(fn projection.LinkStateHook)
	OnLabState(fn projection.LabStateHook)
	OnJobProgress(fn projection.JobProgressHook)
	OnResync(fn projection.ResyncHook)
	OnConnectionState(fn ConnectionStateHook)
	OnNotification(fn NotificationHook)
	OnPreferencesChange(fn PreferencesHook)
}

// hooks holds the client-level callbacks. Projection hooks are registered
// on the projection directly.
type hooks struct {
	mu            sync.RWMutex
	onConnection  []ConnectionStateHook
	onNotify      []NotificationHook
	onPreferences []PreferencesHook
}

func newHooks() *hooks {
	return &hooks{}
}

func (h *hooks) addConnection(fn ConnectionStateHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnection = append(h.onConnection, fn)
}

func (h *hooks) addNotification(fn NotificationHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onNotify = append(h.onNotify, fn)
}

func (h *hooks) addPreferences(fn PreferencesHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPreferences = append(h.onPreferences, fn)
}

func (h *hooks) connectionChanged(s connection.Status) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onConnection {
		fn(s)
	}
}

func (h *hooks) notified(e notify.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onNotify {
		fn(e)
	}
}

func (h *hooks) preferencesChanged(p preferences.UserPreferences) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onPreferences {
		fn(p)
	}
}

// OnNodeState registers a callback for node updates.
func (c *client) OnNodeState(fn projection.NodeStateHook) { c.projection.OnNodeState(fn) }

// OnLinkState registers a callback for link updates.
func (c *client) OnLinkState(fn projection.LinkStateHook) { c.projection.OnLinkState(fn) }

// OnLabState registers a callback for lab updates.
func (c *client) OnLabState(fn projection.LabStateHook) { c.projection.OnLabState(fn) }

// OnJobProgress registers a callback for job progress events.
func (c *client) OnJobProgress(fn projection.JobProgressHook) { c.projection.OnJobProgress(fn) }

// OnResync registers a callback for projection resets and bulk replacements.
func (c *client) OnResync(fn projection.ResyncHook) { c.projection.OnResync(fn) }

// OnConnectionState registers a callback for connection status changes.
func (c *client) OnConnectionState(fn ConnectionStateHook) { c.hooks.addConnection(fn) }

// OnNotification registers a callback for notification routing events.
func (c *client) OnNotification(fn NotificationHook) { c.hooks.addNotification(fn) }

// OnPreferencesChange registers a callback for preference changes.
func (c *client) OnPreferencesChange(fn PreferencesHook) { c.hooks.addPreferences(fn) }
