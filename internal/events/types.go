// Package events fans core labsync events out to relay transports.
//
// The root client's hooks publish into a Broker; transports such as the SSE
// broadcaster and the WebSocket hub subscribe to it through adapters, so a
// node state change reaches every display connection through one pipeline.
package events

import "time"

// EventType names a relayed event.
type EventType string

// Projection events.
const (
	NodeState   EventType = "node.state"
	LinkState   EventType = "link.state"
	LabState    EventType = "lab.state"
	JobProgress EventType = "job.progress"
	Resync      EventType = "resync"
)

// Connection and session events.
const (
	ConnectionState    EventType = "connection.state"
	PreferencesChanged EventType = "preferences.changed"
	ClientConnected    EventType = "client.connected"
)

// Notification events mirror the router's event names.
const (
	NotificationAdded   EventType = "notification.added"
	NotificationRead    EventType = "notification.read"
	NotificationAllRead EventType = "notification.all_read"
	NotificationCleared EventType = "notification.cleared"
	ToastShown          EventType = "toast.shown"
	ToastClosed         EventType = "toast.closed"
)

// Event is one relayed change.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
