// Package notify routes user notifications to two independent channels: a
// transient toast queue and a capacity-bounded bell history.
//
// Identical notifications (same level, title and message) are collapsed
// within a dedup window. Each channel applies its own enable flag and
// category filter from the user's notification settings.
package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/logging"
	"github.com/agentstation/labsync/pkg/preferences"
)

// Event types published to subscribers.
const (
	EventAdded       = "notification.added"
	EventRead        = "notification.read"
	EventAllRead     = "notification.all_read"
	EventCleared     = "notification.cleared"
	EventToastShown  = "toast.shown"
	EventToastClosed = "toast.closed"
)

// Event describes a change to either channel.
type Event struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
	// Sound is set on EventAdded when the bell accepted the entry and sound is enabled.
	Sound bool `json:"sound,omitempty"`
}

// Options configures a Router.
type Options struct {
	Settings    preferences.NotificationSettings
	DedupWindow time.Duration
	Logger      *zerolog.Logger
}

// Router is the single owner of the dedup markers, the bell history and the
// toast queue. It is safe for concurrent use.
type Router struct {
	logger *zerolog.Logger
	window time.Duration
	dedup  *cache.Cache

	mu       sync.Mutex
	settings preferences.NotificationSettings
	bell     []Notification
	toasts   []Notification
	timers   map[string]*time.Timer
	subs     map[int]func(Event)
	nextSub  int
	closed   bool
}

// NewRouter creates a Router. A zero Settings value is replaced by the defaults.
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = constants.DedupWindow
	}
	if opts.Settings == (preferences.NotificationSettings{}) {
		opts.Settings = preferences.DefaultNotificationSettings()
	}
	return &Router{
		logger:   opts.Logger,
		window:   opts.DedupWindow,
		dedup:    cache.New(opts.DedupWindow, cache.NoExpiration),
		settings: opts.Settings,
		timers:   make(map[string]*time.Timer),
		subs:     make(map[int]func(Event)),
	}
}

// Add creates a notification unless an identical one was added within the
// dedup window. It reports the notification and whether it was created; a
// created notification may still be filtered out of both channels.
func (r *Router) Add(level Level, title, message string, opts ...Option) (Notification, bool) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	// Add fails while a live marker exists; expired markers count as absent.
	// There is no janitor goroutine, so expired markers are swept here.
	r.dedup.DeleteExpired()
	key := DedupKey(level, title, message)
	if err := r.dedup.Add(key, struct{}{}, r.window); err != nil {
		r.logger.Debug().Str("key", key).Msg("Suppressed duplicate notification")
		return Notification{}, false
	}

	n := newNotification(level, title, message, o.category)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Notification{}, false
	}
	var events []Event

	bell := BellFilter(r.settings.Bell)
	if bell.Accepts(n.Category) {
		r.bell = append([]Notification{n}, r.bell...)
		r.truncateLocked()
		events = append(events, Event{Type: EventAdded, Notification: &n, Sound: r.settings.Bell.SoundEnabled})
	}

	toast := ToastFilter(r.settings.Toasts)
	if toast.Accepts(n.Category) {
		d := o.duration
		if d <= 0 {
			d = r.settings.Toasts.DurationTime()
		}
		if d <= 0 {
			d = constants.DefaultToastDuration
		}
		r.toasts = append(r.toasts, n)
		id := n.ID
		r.timers[id] = time.AfterFunc(d, func() { r.expireToast(id) })
		events = append(events, Event{Type: EventToastShown, Notification: &n})
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	r.logger.Debug().
		Str("level", string(level)).
		Str("category", n.Category).
		Int("deliveries", len(events)).
		Msg("Routed notification")
	publish(subs, events...)
	return n, true
}

func (r *Router) truncateLocked() {
	capacity := r.settings.Bell.MaxHistory
	if capacity <= 0 {
		capacity = constants.DefaultBellCapacity
	}
	if len(r.bell) > capacity {
		r.bell = slices.Clip(r.bell[:capacity])
	}
}

func (r *Router) expireToast(id string) {
	if n, ok := r.removeToast(id); ok {
		r.logger.Debug().Str("id", id).Msg("Toast expired")
		r.emit(Event{Type: EventToastClosed, Notification: &n})
	}
}

func (r *Router) removeToast(id string) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	i := slices.IndexFunc(r.toasts, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return Notification{}, false
	}
	n := r.toasts[i]
	r.toasts = slices.Delete(r.toasts, i, i+1)
	return n, true
}

// DismissToast removes a toast immediately. The bell is not touched.
func (r *Router) DismissToast(id string) error {
	n, ok := r.removeToast(id)
	if !ok {
		return errors.NewNotFoundError("toast", id)
	}
	r.emit(Event{Type: EventToastClosed, Notification: &n})
	return nil
}

// MarkAsRead marks one bell entry as read. The toast queue is not touched.
func (r *Router) MarkAsRead(id string) error {
	r.mu.Lock()
	i := slices.IndexFunc(r.bell, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		r.mu.Unlock()
		return errors.NewNotFoundError("notification", id)
	}
	r.bell[i].Read = true
	n := r.bell[i]
	subs := r.subscribersLocked()
	r.mu.Unlock()

	publish(subs, Event{Type: EventRead, Notification: &n})
	return nil
}

// MarkAllAsRead marks every bell entry as read.
func (r *Router) MarkAllAsRead() {
	r.mu.Lock()
	for i := range r.bell {
		r.bell[i].Read = true
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()
	publish(subs, Event{Type: EventAllRead})
}

// ClearNotifications empties the bell history.
func (r *Router) ClearNotifications() {
	r.mu.Lock()
	r.bell = nil
	subs := r.subscribersLocked()
	r.mu.Unlock()
	publish(subs, Event{Type: EventCleared})
}

// History returns a copy of the bell history, most recent first.
func (r *Router) History() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.bell)
}

// Toasts returns a copy of the toast queue, oldest first.
func (r *Router) Toasts() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.toasts)
}

// UnreadCount returns the number of unread bell entries.
func (r *Router) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bell {
		if !b.Read {
			n++
		}
	}
	return n
}

// Settings returns the active notification settings.
func (r *Router) Settings() preferences.NotificationSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// SetSettings replaces the filter configuration. Shrinking the bell capacity
// truncates the history; queued toasts keep their schedule.
func (r *Router) SetSettings(s preferences.NotificationSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
	r.truncateLocked()
}

// Subscribe registers fn for every routing event and returns a function
// that removes it. Callbacks run outside the router lock.
func (r *Router) Subscribe(fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Close stops every toast timer and drops the dedup markers. Later calls to
// Add are ignored.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.dedup.Flush()
	return nil
}

func (r *Router) emit(events ...Event) {
	r.mu.Lock()
	subs := r.subscribersLocked()
	r.mu.Unlock()
	publish(subs, events...)
}

func (r *Router) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	return subs
}

func publish(subs []func(Event), events ...Event) {
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
