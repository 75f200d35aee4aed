// Package labsync keeps a live, in-memory picture of a network lab and
// turns lab activity into user notifications.
//
// A Client subscribes to a lab's push channel over WebSocket, projects the
// stream of state messages into node, link and lab state, routes
// notifications to a toast queue and a bell history, and keeps the user's
// notification and canvas preferences in sync with the lab API.
//
// Example usage:
//
//	client, err := labsync.New(
//	    labsync.WithBaseURL("https://labs.example.com/api"),
//	    labsync.WithToken(os.Getenv("LABSYNC_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.OnNodeState(func(n projection.NodeState) {
//	    fmt.Printf("%s is %s\n", n.NodeName, n.ActualState)
//	})
//	client.LoadPreferences(ctx)
//	if err := client.Connect(ctx, "lab-42"); err != nil {
//	    log.Fatal(err)
//	}
package labsync

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/internal/transport"
	"github.com/agentstation/labsync/pkg/connection"
	"github.com/agentstation/labsync/pkg/logging"
	"github.com/agentstation/labsync/pkg/notify"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/projection"
	"github.com/agentstation/labsync/pkg/settingsync"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Subscriber manages the lab subscription.
type Subscriber interface {
	// Connect subscribes to a lab. The connection is opened in the
	// background and retried with backoff until ctx is done or Disconnect
	// is called.
	Connect(ctx context.Context, labID string) error
	// Disconnect ends the subscription without retrying. The last known
	// state is kept.
	Disconnect()
	// Refresh asks the server to resend the full state. While not
	// connected nothing is sent and ErrNotConnected is returned for
	// information only.
	Refresh() error
	Status() connection.Status
}

// State provides copy-on-read access to the projected lab state.
type State interface {
	Nodes() map[string]projection.NodeState
	Links() map[string]projection.LinkState
	Lab() (projection.LabState, bool)
	Snapshot() projection.Snapshot
}

// Notifier raises and inspects user notifications.
type Notifier interface {
	Notify(level notify.Level, title, message string, opts ...notify.Option) (notify.Notification, bool)
	Notifications() *notify.Router
}

// Settings reads and updates the user's preferences.
type Settings interface {
	Preferences() preferences.UserPreferences
	LoadPreferences(ctx context.Context) (preferences.UserPreferences, settingsync.Source)
	UpdateNotificationSettings(ctx context.Context, patch preferences.NotificationSettingsPatch) error
	UpdateCanvasSettings(ctx context.Context, patch preferences.CanvasSettingsPatch) error
}

// Client is the lab sync engine for one user session.
type Client interface {
	Subscriber
	State
	Notifier
	Settings
	Hooks

	// Close ends the subscription, stops toast timers and releases the
	// preference store.
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {
	options *options
	logger  *zerolog.Logger

	projection *projection.Projection
	manager    *connection.Manager
	router     *notify.Router
	settings   *settingsync.Synchronizer
	remote     *transport.Client
	hooks      *hooks
	jobs       *jobTracker

	closeOnce sync.Once
	closeErr  error
}

// New creates a Client from the given options. WithBaseURL is required.
func New(opts ...Option) (Client, error) {
	o, err := defaults().apply(opts...)
	if err != nil {
		return nil, err
	}
	logger := o.logger
	if logger == nil {
		logger = logging.Default()
	}

	topts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithAuthenticator(transport.AuthenticatorFor(o.authScheme)),
	}
	if o.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(o.httpClient))
	}
	remote := transport.New(o.baseURL, o.token, topts...)

	proj := projection.New(logger)
	c := &client{
		options:    o,
		logger:     logger,
		projection: proj,
		manager: connection.NewManager(proj, connection.Options{
			BaseURL:     o.baseURL,
			Header:      remote.Header(),
			Dialer:      o.dialer,
			Logger:      logger,
			BackoffBase: o.backoffBase,
			BackoffMax:  o.backoffMax,
			KeepAlive:   o.keepAlive,
		}),
		router: notify.NewRouter(notify.Options{
			Settings:    preferences.DefaultNotificationSettings(),
			DedupWindow: o.dedupWindow,
			Logger:      logger,
		}),
		settings: settingsync.New(settingsync.Options{
			Remote:  remote,
			Session: remote.Authenticated,
			Store:   o.store,
			Logger:  logger,
		}),
		remote: remote,
		hooks:  newHooks(),
		jobs:   newJobTracker(),
	}
	c.wire()

	logger.Debug().
		Str("base_url", o.baseURL).
		Bool("authenticated", remote.Authenticated()).
		Bool("job_notifications", o.jobNotifications).
		Msg("Client created")
	return c, nil
}

// wire connects the components to each other and to the client hooks.
func (c *client) wire() {
	c.manager.OnStateChange(c.hooks.connectionChanged)
	c.router.Subscribe(c.hooks.notified)

	c.settings.OnChange(func(p preferences.UserPreferences) {
		c.router.SetSettings(p.NotificationSettings)
		c.hooks.preferencesChanged(p)
	})

	c.projection.OnLabState(c.labChanged)
	c.projection.OnResync(func(projection.Snapshot) { c.jobs.reset() })
	if c.options.jobNotifications {
		c.projection.OnJobProgress(c.jobChanged)
	}
}

func (c *client) labChanged(lab projection.LabState) {
	if !strings.EqualFold(lab.State, "error") {
		return
	}
	msg := lab.Error
	if msg == "" {
		msg = "The lab entered an error state"
	}
	c.router.Add(notify.LevelError, "Lab error", msg)
}

func (c *client) jobChanged(job projection.JobProgress) {
	n, ok := c.jobs.notification(job)
	if !ok {
		return
	}
	c.router.Add(n.level, n.title, n.message, notify.WithCategory(n.category))
}

// Connect subscribes to a lab.
func (c *client) Connect(ctx context.Context, labID string) error {
	return c.manager.Connect(logging.WithLab(ctx, labID), labID)
}

// Disconnect ends the subscription.
func (c *client) Disconnect() { c.manager.Disconnect() }

// Refresh asks the server to resend the full state.
func (c *client) Refresh() error { return c.manager.Refresh() }

// Status returns the connection status.
func (c *client) Status() connection.Status { return c.manager.Status() }

// Nodes returns a copy of the node map.
func (c *client) Nodes() map[string]projection.NodeState { return c.projection.Nodes() }

// Links returns a copy of the link map.
func (c *client) Links() map[string]projection.LinkState { return c.projection.Links() }

// Lab returns the lab state, if one has been received.
func (c *client) Lab() (projection.LabState, bool) { return c.projection.Lab() }

// Snapshot returns a copy of the whole projection.
func (c *client) Snapshot() projection.Snapshot { return c.projection.Snapshot() }

// Notify routes a notification.
func (c *client) Notify(level notify.Level, title, message string, opts ...notify.Option) (notify.Notification, bool) {
	return c.router.Add(level, title, message, opts...)
}

// Notifications returns the notification router.
func (c *client) Notifications() *notify.Router { return c.router }

// Preferences returns the current preference aggregate.
func (c *client) Preferences() preferences.UserPreferences { return c.settings.Current() }

// LoadPreferences fetches the user's preferences. The router's filters
// follow the loaded notification settings.
func (c *client) LoadPreferences(ctx context.Context) (preferences.UserPreferences, settingsync.Source) {
	return c.settings.Load(ctx)
}

// UpdateNotificationSettings merges a notification settings patch.
func (c *client) UpdateNotificationSettings(ctx context.Context, patch preferences.NotificationSettingsPatch) error {
	return c.settings.UpdateNotificationSettings(ctx, patch)
}

// UpdateCanvasSettings merges a canvas settings patch.
func (c *client) UpdateCanvasSettings(ctx context.Context, patch preferences.CanvasSettingsPatch) error {
	return c.settings.UpdateCanvasSettings(ctx, patch)
}

// Close tears the client down. It is safe to call more than once.
func (c *client) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Debug().Msg("Closing client")
		connErr := c.manager.Close()
		routerErr := c.router.Close()
		var storeErr error
		if c.options.store != nil {
			storeErr = c.options.store.Close()
		}
		c.closeErr = firstErr(connErr, routerErr, storeErr)
	})
	return c.closeErr
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
