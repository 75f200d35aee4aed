// Package constants provides shared constants used throughout the labsync codebase.
// This includes protocol timings, queue limits, file permissions, and the
// message type names of the lab state push protocol.
package constants

import "time"

// Reconnect and keep-alive timings for the push transport
const (
	// BackoffBase is the delay before the first reconnect attempt
	BackoffBase = 1 * time.Second

	// BackoffMax caps the delay between reconnect attempts
	BackoffMax = 30 * time.Second

	// KeepAliveInterval is the interval between client ping messages while connected
	KeepAliveInterval = 25 * time.Second

	// HandshakeTimeout bounds the WebSocket opening handshake
	HandshakeTimeout = 10 * time.Second

	// WriteWait is the time allowed to write a single frame to the peer
	WriteWait = 10 * time.Second

	// CloseGracePeriod is how long a clean close waits for the peer's close frame
	CloseGracePeriod = 1 * time.Second
)

// Notification routing defaults
const (
	// DedupWindow is how long an identical notification is suppressed
	DedupWindow = 10 * time.Second

	// DefaultToastDuration is how long a toast stays visible when settings do not say otherwise
	DefaultToastDuration = 5 * time.Second

	// DefaultBellCapacity is the default bell history capacity
	DefaultBellCapacity = 50

	// MaxBellCapacity is the largest bell history capacity accepted from settings
	MaxBellCapacity = 500
)

// HTTP client settings for the preference store
const (
	// DefaultHTTPTimeout is the standard timeout for preference store requests
	DefaultHTTPTimeout = 15 * time.Second

	// PreferencesPath is the preference store endpoint, relative to the API base
	PreferencesPath = "/auth/preferences"
)

// Buffer sizes
const (
	// ChannelBufferSize is the default buffer size for event channels
	ChannelBufferSize = 256

	// OutboundBufferSize is the number of client messages queued for the writer
	OutboundBufferSize = 16
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// SecureFilePermissions is for preference files that may contain session data (rw-------)
	SecureFilePermissions = 0600
)

// Inbound message types of the lab state protocol
const (
	TypeInitialState = "initial_state"
	TypeInitialLinks = "initial_links"
	TypeNodeState    = "node_state"
	TypeLinkState    = "link_state"
	TypeLabState     = "lab_state"
	TypeJobProgress  = "job_progress"
	TypeHeartbeat    = "heartbeat"
	TypePong         = "pong"
	TypeError        = "error"
)

// Outbound message types of the lab state protocol
const (
	TypePing    = "ping"
	TypeRefresh = "refresh"
)

// Path constants
const (
	// DefaultStoreDir is the default directory for persisted preferences
	DefaultStoreDir = "~/.labsync"

	// PreferencesKey is the store key holding the last known preference aggregate
	PreferencesKey = "preferences"
)
