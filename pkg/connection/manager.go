// Package connection manages the push connection to one lab's state
// endpoint. It reconnects with exponential backoff after unexpected closes,
// keeps the connection alive with periodic pings, and hands every inbound
// frame, in arrival order, to a Handler.
//
// A Manager holds at most one subscription. Subscribing to another lab tears
// the previous connection down before the new one is opened. Caller-initiated
// disconnects never schedule a retry.
package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/logging"
)

// Handler consumes the frames of a connection.
type Handler interface {
	// Reset is called after every successful (re)connect and on resource change.
	Reset()
	// HandleMessage is called once per inbound frame, in arrival order.
	HandleMessage(raw []byte)
}

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options configures a Manager.
type Options struct {
	// BaseURL is the API base address the state URL is derived from.
	BaseURL string
	// Header is sent with every handshake, typically carrying authorization.
	Header http.Header
	Dialer Dialer
	Logger *zerolog.Logger

	BackoffBase time.Duration
	BackoffMax  time.Duration
	KeepAlive   time.Duration
}

func (o *Options) defaults() {
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.HandshakeTimeout,
		}
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = constants.BackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = constants.BackoffMax
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = constants.KeepAliveInterval
	}
}

// Manager owns the connection of one subscription at a time.
type Manager struct {
	opts    Options
	handler Handler
	logger  *zerolog.Logger

	// connectMu serializes Connect, Disconnect and Close.
	connectMu sync.Mutex

	mu        sync.Mutex
	status    Status
	sub       *subscription
	listeners []func(Status)
	closed    bool
}

type subscription struct {
	resource string
	url      string
	ctx      context.Context
	cancel   context.CancelFunc
	out      chan []byte
	done     chan struct{}

	// callbacks counts handler and listener calls in progress on the
	// subscription's own goroutines.
	callbacks atomic.Int32
}

// callback runs fn as a callback of sub.
func (sub *subscription) callback(fn func()) {
	sub.callbacks.Add(1)
	defer sub.callbacks.Add(-1)
	fn()
}

// NewManager creates a Manager that feeds frames to handler.
func NewManager(handler Handler, opts Options) *Manager {
	opts.defaults()
	return &Manager{
		opts:    opts,
		handler: handler,
		logger:  opts.Logger,
		status:  Status{State: Disconnected, Since: time.Now()},
	}
}

// OnStateChange registers a callback invoked after every status change.
func (m *Manager) OnStateChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect subscribes to resourceID. Any previous subscription is torn down
// first and the handler is reset. Connect returns once the subscription is
// started; the connection itself is opened in the background. The
// subscription ends when ctx is done or Disconnect is called.
func (m *Manager) Connect(ctx context.Context, resourceID string) error {
	target, err := StateURL(m.opts.BaseURL, resourceID)
	if err != nil {
		return err
	}

	m.connectMu.Lock()
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		m.connectMu.Unlock()
		return errors.ErrClosed
	}

	m.teardown()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		resource: resourceID,
		url:      target,
		ctx:      subCtx,
		cancel:   cancel,
		out:      make(chan []byte, constants.OutboundBufferSize),
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
	m.connectMu.Unlock()

	// callbacks run without connectMu so they may call back into the manager
	sub.callback(m.handler.Reset)
	m.setState(sub, Status{State: Connecting, Resource: resourceID})

	go m.run(sub)
	return nil
}

// Disconnect ends the subscription without scheduling a retry. It returns
// after the connection is closed and no further frames will be handled.
// Called from a Handler or state listener, it cancels the subscription and
// returns at once; the Disconnected status follows when the loop exits.
func (m *Manager) Disconnect() {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()
	m.teardown()
}

// Close disconnects and rejects further Connect calls.
func (m *Manager) Close() error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.teardown()
	return nil
}

// Refresh asks the server to resend the full state. Nothing is sent unless
// the connection is open; the ErrNotConnected returned then is informational
// and nothing else changes.
func (m *Manager) Refresh() error {
	return m.send(constants.TypeRefresh)
}

// teardown cancels the current subscription and waits for its loop to exit.
// It does not wait when called back from the subscription itself, since the
// loop cannot exit before that callback returns. The caller holds connectMu.
func (m *Manager) teardown() {
	m.mu.Lock()
	sub := m.sub
	m.mu.Unlock()
	if sub == nil {
		return
	}

	sub.cancel()
	if sub.callbacks.Load() > 0 {
		return
	}
	<-sub.done
}

func (m *Manager) send(msgType string) error {
	m.mu.Lock()
	sub := m.sub
	connected := m.status.State == Connected
	m.mu.Unlock()

	if sub == nil || !connected {
		return errors.ErrNotConnected
	}

	frame, err := json.Marshal(map[string]string{"type": msgType})
	if err != nil {
		return err
	}
	select {
	case sub.out <- frame:
		return nil
	default:
		m.logger.Warn().Str("lab_id", sub.resource).Str("type", msgType).Msg("Outbound queue full, message dropped")
		return nil
	}
}

// setState publishes a status for sub. Updates from a superseded
// subscription are discarded.
func (m *Manager) setState(sub *subscription, st Status) {
	m.mu.Lock()
	if m.sub != sub {
		m.mu.Unlock()
		return
	}
	st.Since = time.Now()
	m.status = st
	listeners := append([]func(Status){}, m.listeners...)
	m.mu.Unlock()

	sub.callback(func() {
		for _, fn := range listeners {
			fn(st)
		}
	})
}

// finish marks sub as ended.
func (m *Manager) finish(sub *subscription) {
	m.mu.Lock()
	current := m.sub == sub
	m.mu.Unlock()
	if current {
		m.setState(sub, Status{State: Disconnected, Resource: sub.resource})
		m.mu.Lock()
		// a listener may already have started the next subscription
		if m.sub == sub {
			m.sub = nil
		}
		m.mu.Unlock()
	}
	close(sub.done)
}

// run is the reconnect loop of one subscription.
func (m *Manager) run(sub *subscription) {
	defer m.finish(sub)

	log := m.logger.With().Str("lab_id", sub.resource).Logger()
	attempt := 0
	for {
		conn, resp, err := m.opts.Dialer.DialContext(sub.ctx, sub.url, m.opts.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if sub.ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			ev := log.Warn().Err(err).Int("attempt", attempt)
			if resp != nil {
				ev = ev.Int("status_code", resp.StatusCode)
			}
			ev.Msg("Lab state connection failed")

			if !m.wait(sub, &log, attempt, errors.NewConnectionError(sub.resource, "dial", attempt, err)) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		sub.callback(m.handler.Reset)
		m.setState(sub, Status{State: Connected, Resource: sub.resource})
		log.Info().Str("url", sub.url).Msg("Lab state connection established")

		err = m.serve(sub, conn, &log)
		if sub.ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("Lab state connection lost")
		if !m.wait(sub, &log, attempt, errors.NewConnectionError(sub.resource, "read", attempt, err)) {
			return
		}
		attempt++
	}
}

// wait schedules the next attempt and blocks until it is due. It returns
// false when the subscription ended while waiting.
func (m *Manager) wait(sub *subscription, log *zerolog.Logger, attempt int, cause error) bool {
	delay := Backoff(attempt, m.opts.BackoffBase, m.opts.BackoffMax)
	m.setState(sub, Status{
		State:     Reconnecting,
		Resource:  sub.resource,
		Attempt:   attempt + 1,
		LastError: cause,
		Delay:     delay,
		NextRetry: time.Now().Add(delay),
	})
	log.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("Scheduling lab state reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-sub.ctx.Done():
		return false
	}
}

// serve pumps one open connection. Reads happen on a dedicated goroutine so
// frames reach the handler in order; this goroutine is the only writer.
// serve returns after the reader has exited.
func (m *Manager) serve(sub *subscription, conn *websocket.Conn, log *zerolog.Logger) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			// frames after a cancel belong to no subscription
			if sub.ctx.Err() != nil {
				continue
			}
			sub.callback(func() { m.handler.HandleMessage(data) })
		}
	}()

	ping, _ := json.Marshal(map[string]string{"type": constants.TypePing})
	ticker := time.NewTicker(m.opts.KeepAlive)
	defer ticker.Stop()

	write := func(frame []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
		return conn.WriteMessage(websocket.TextMessage, frame)
	}

	for {
		select {
		case <-sub.ctx.Done():
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(constants.WriteWait))
			drained := false
			select {
			case <-readErr:
				drained = true
			case <-time.After(constants.CloseGracePeriod):
			}
			_ = conn.Close()
			if !drained {
				<-readErr
			}
			log.Debug().Msg("Lab state connection closed")
			return nil

		case err := <-readErr:
			_ = conn.Close()
			return err

		case <-ticker.C:
			if err := write(ping); err != nil {
				_ = conn.Close()
				<-readErr
				return err
			}

		case frame := <-sub.out:
			if err := write(frame); err != nil {
				_ = conn.Close()
				<-readErr
				return err
			}
		}
	}
}
