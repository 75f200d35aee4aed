package labsync

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/pkg/connection"
	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/store"
)

// Option configures a Client.
type Option func(*options) error

// options holds the resolved configuration of a client.
type options struct {
	baseURL    string
	token      string
	authScheme string
	store      *store.Store
	logger     *zerolog.Logger
	dialer     connection.Dialer
	httpClient *http.Client

	jobNotifications bool
	dedupWindow      time.Duration
	backoffBase      time.Duration
	backoffMax       time.Duration
	keepAlive        time.Duration
}

// defaults returns the options used when none are given.
func defaults() *options {
	return &options{
		authScheme:       "bearer",
		jobNotifications: true,
		dedupWindow:      constants.DedupWindow,
		backoffBase:      constants.BackoffBase,
		backoffMax:       constants.BackoffMax,
		keepAlive:        constants.KeepAliveInterval,
	}
}

// apply applies opts in order and validates the result.
func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.baseURL == "" {
		return nil, &errors.ValidationError{Field: "base_url", Message: "is required"}
	}
	return o, nil
}

// WithBaseURL sets the lab API address, e.g. https://labs.example.com/api.
// The state WebSocket and the preference endpoints are derived from it.
func WithBaseURL(url string) Option {
	return func(o *options) error {
		o.baseURL = url
		return nil
	}
}

// WithToken sets the session token. Without one the client is
// unauthenticated and preferences stay local.
func WithToken(token string) Option {
	return func(o *options) error {
		o.token = token
		return nil
	}
}

// WithAuthScheme sets how the token is sent: "bearer" (default),
// "cookie:<name>", "header:<name>" or "none".
func WithAuthScheme(scheme string) Option {
	return func(o *options) error {
		o.authScheme = scheme
		return nil
	}
}

// WithStore sets where the last known preferences are persisted.
func WithStore(s *store.Store) Option {
	return func(o *options) error {
		o.store = s
		return nil
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d connection.Dialer) Option {
	return func(o *options) error {
		o.dialer = d
		return nil
	}
}

// WithHTTPClient replaces the HTTP client used for preference requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) error {
		o.httpClient = hc
		return nil
	}
}

// WithJobNotifications controls whether job progress events raise
// notifications. Enabled by default.
func WithJobNotifications(enabled bool) Option {
	return func(o *options) error {
		o.jobNotifications = enabled
		return nil
	}
}

// WithDedupWindow overrides how long identical notifications are collapsed.
func WithDedupWindow(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return &errors.ValidationError{Field: "dedup_window", Value: d, Message: "must be positive"}
		}
		o.dedupWindow = d
		return nil
	}
}

// WithBackoff overrides the reconnect delay bounds.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(o *options) error {
		if base <= 0 || maxDelay < base {
			return &errors.ValidationError{Field: "backoff", Message: "base must be positive and not exceed max"}
		}
		o.backoffBase = base
		o.backoffMax = maxDelay
		return nil
	}
}

// WithKeepAlive overrides the ping interval.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return &errors.ValidationError{Field: "keep_alive", Value: d, Message: "must be positive"}
		}
		o.keepAlive = d
		return nil
	}
}
