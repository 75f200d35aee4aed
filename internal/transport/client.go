// Package transport is the HTTP client for the remote preference store.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/logging"
	"github.com/agentstation/labsync/pkg/preferences"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = constants.DefaultHTTPTimeout

// Client talks to the preference endpoints of the lab API.
type Client struct {
	http    *http.Client
	auth    Authenticator
	baseURL string
	token   string
	logger  *zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAuthenticator sets how the token is attached to requests.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		if a != nil {
			c.auth = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the API at baseURL. An empty token means there is
// no session.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
		auth:    &BearerAuth{},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticated reports whether a session token is configured.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// Header returns the headers to send with the push connection handshake.
func (c *Client) Header() http.Header {
	req := &http.Request{Header: make(http.Header), URL: &url.URL{}}
	if c.token != "" {
		c.auth.Apply(req, c.token)
	}
	return req.Header
}

// GetPreferences fetches the full preference aggregate.
func (c *Client) GetPreferences(ctx context.Context) (preferences.UserPreferences, error) {
	var out preferences.UserPreferences
	err := c.do(ctx, http.MethodGet, constants.PreferencesPath, nil, &out)
	return out, err
}

// PatchPreferences sends a partial aggregate and returns the merged,
// server-validated aggregate.
func (c *Client) PatchPreferences(ctx context.Context, partial any) (preferences.UserPreferences, error) {
	var out preferences.UserPreferences
	err := c.do(ctx, http.MethodPatch, constants.PreferencesPath, partial, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	if !c.Authenticated() {
		return errors.ErrUnauthenticated
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.WrapParse("json", "request", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.WrapResource("create", "request", method+" "+endpoint, err)
	}

	c.auth.Apply(req, c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("url", endpoint).Msg("Preference store request")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapResource(strings.ToLower(method), "preferences", "", err)
	}
	return DecodeResponse(resp, path, target)
}
