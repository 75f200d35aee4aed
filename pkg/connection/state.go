package connection

import (
	"time"
)

// State is the lifecycle state of a lab connection.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of the connection.
type Status struct {
	State    State  `json:"state" yaml:"state"`
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`
	// Attempt counts consecutive failed attempts; it is 0 while connected.
	Attempt   int           `json:"attempt" yaml:"attempt"`
	LastError error         `json:"-" yaml:"-"`
	Delay     time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	NextRetry time.Time     `json:"next_retry,omitzero" yaml:"next_retry,omitempty"`
	Since     time.Time     `json:"since" yaml:"since"`
}

// Err returns the last error text, or "" when there is none.
func (s Status) Err() string {
	if s.LastError == nil {
		return ""
	}
	return s.LastError.Error()
}

// Backoff returns min(base × 2^attempt, max) without overflowing.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	return min(d, max)
}
