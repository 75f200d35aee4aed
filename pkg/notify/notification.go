package notify

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentstation/labsync/pkg/errors"
)

// Level is the severity of a notification.
type Level string

// Notification levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel parses a level name.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(s)); l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return l, nil
	}
	return "", errors.NewValidationError("level", s, "must be one of info, success, warning, error")
}

// Notification is one user-facing notification. Only Read ever changes
// after creation, and only through the Router.
type Notification struct {
	ID        string    `json:"id" yaml:"id"`
	Level     Level     `json:"level" yaml:"level"`
	Title     string    `json:"title" yaml:"title"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
	Category  string    `json:"category,omitempty" yaml:"category,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Read      bool      `json:"read" yaml:"read"`
}

// DedupKey returns the key identical notifications share.
func DedupKey(level Level, title, message string) string {
	return string(level) + ":" + title + ":" + message
}

func newNotification(level Level, title, message, category string) Notification {
	return Notification{
		ID:        ulid.Make().String(),
		Level:     level,
		Title:     title,
		Message:   message,
		Category:  category,
		Timestamp: time.Now(),
	}
}

// Option customizes a single notification.
type Option func(*addOptions)

type addOptions struct {
	category string
	duration time.Duration
}

// WithCategory sets the notification category, for example "job-failed".
func WithCategory(category string) Option {
	return func(o *addOptions) {
		o.category = category
	}
}

// WithDuration overrides the toast display time for this notification.
func WithDuration(d time.Duration) Option {
	return func(o *addOptions) {
		o.duration = d
	}
}
