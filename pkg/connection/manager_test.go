package connection_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/labsync/pkg/connection"
	pkgerrors "github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/projection"
)

const initialState = `{"type":"initial_state","data":[{"node_id":"r1","actual_state":"running"},{"node_id":"r2","actual_state":"running"}]}`

// labServer is a fake lab state endpoint.
type labServer struct {
	*httptest.Server

	mu       sync.Mutex
	conns    int
	events   []string
	received []string
	headers  []http.Header

	// onConnect runs on each new connection before its read loop starts.
	onConnect func(n int, c *websocket.Conn)
}

func newLabServer(t *testing.T, onConnect func(n int, c *websocket.Conn)) *labServer {
	t.Helper()
	ls := &labServer{onConnect: onConnect}
	upgrader := websocket.Upgrader{}

	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		ls.mu.Lock()
		ls.conns++
		n := ls.conns
		ls.events = append(ls.events, "open:"+r.URL.Path)
		ls.headers = append(ls.headers, r.Header.Clone())
		ls.mu.Unlock()

		path := r.URL.Path
		c.SetCloseHandler(func(code int, text string) error {
			ls.mu.Lock()
			ls.events = append(ls.events, "close:"+path)
			ls.mu.Unlock()
			msg := websocket.FormatCloseMessage(code, "")
			_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return nil
		})

		if ls.onConnect != nil {
			ls.onConnect(n, c)
		}
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			ls.mu.Lock()
			ls.received = append(ls.received, string(data))
			ls.mu.Unlock()
		}
	}))
	t.Cleanup(ls.Close)
	return ls
}

func (ls *labServer) connCount() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.conns
}

func (ls *labServer) receivedCount(frame string) int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	n := 0
	for _, r := range ls.received {
		if r == frame {
			n++
		}
	}
	return n
}

func (ls *labServer) eventLog() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]string(nil), ls.events...)
}

// flakyDialer fails the dials whose 1-based index is listed in failOn.
type flakyDialer struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
	inner  *websocket.Dialer
}

func (d *flakyDialer) DialContext(ctx context.Context, u string, h http.Header) (*websocket.Conn, *http.Response, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()
	if d.failOn[n] {
		return nil, nil, errors.New("connection refused")
	}
	return d.inner.DialContext(ctx, u, h)
}

// statusLog records every published status.
type statusLog struct {
	mu       sync.Mutex
	statuses []connection.Status
}

func (l *statusLog) record(s connection.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *statusLog) all() []connection.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]connection.Status(nil), l.statuses...)
}

func newManager(t *testing.T, base string, h connection.Handler, mutate func(*connection.Options)) *connection.Manager {
	t.Helper()
	logger := zerolog.Nop()
	opts := connection.Options{
		BaseURL:     base,
		Logger:      &logger,
		BackoffBase: 50 * time.Millisecond,
		BackoffMax:  time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	m := connection.NewManager(h, opts)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func waitState(t *testing.T, m *connection.Manager, want connection.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Status().State == want
	}, 3*time.Second, 5*time.Millisecond, "waiting for %s, have %s", want, m.Status().State)
}

func newProjection() *projection.Projection {
	logger := zerolog.Nop()
	return projection.New(&logger)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{200, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, connection.Backoff(tt.attempt, time.Second, 30*time.Second), "attempt %d", tt.attempt)
	}
}

func TestStateURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/labs/42/state"},
		{"https://lab.example.com/api", "wss://lab.example.com/api/ws/labs/42/state"},
		{"https://lab.example.com/api/", "wss://lab.example.com/api/ws/labs/42/state"},
		{"wss://lab.example.com", "wss://lab.example.com/ws/labs/42/state"},
	}
	for _, tt := range tests {
		got, err := connection.StateURL(tt.base, "42")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	got, err := connection.StateURL("http://h", "a/b")
	require.NoError(t, err)
	assert.Equal(t, "ws://h/ws/labs/a%2Fb/state", got, "the id stays one path segment")
	got, err = connection.StateURL("http://h", "lab 1?x")
	require.NoError(t, err)
	assert.Equal(t, "ws://h/ws/labs/lab%201%3Fx/state", got)

	_, err = connection.StateURL("ftp://x", "42")
	assert.Error(t, err)
	for _, id := range []string{"", ".", ".."} {
		_, err = connection.StateURL("http://x", id)
		assert.True(t, pkgerrors.IsValidationError(err), "id %q", id)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", connection.Disconnected.String())
	assert.Equal(t, "connecting", connection.Connecting.String())
	assert.Equal(t, "connected", connection.Connected.String())
	assert.Equal(t, "reconnecting", connection.Reconnecting.String())
}

func TestConnectAppliesMessages(t *testing.T) {
	srv := newLabServer(t, func(_ int, c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(initialState))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"type":"node_state","data":{"node_id":"r1","actual_state":"stopped"}}`))
	})
	p := newProjection()
	m := newManager(t, srv.URL, p, func(o *connection.Options) {
		o.Header = http.Header{"Authorization": []string{"Bearer secret"}}
	})

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	waitState(t, m, connection.Connected)

	require.Eventually(t, func() bool {
		n, ok := p.Node("r1")
		return ok && n.ActualState == "stopped"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Len(t, p.Nodes(), 2)
	assert.Equal(t, uint64(1), p.Stats().Malformed)
	assert.Equal(t, connection.Connected, m.Status().State, "malformed frames keep the connection open")
	assert.Equal(t, 1, srv.connCount())
	assert.Equal(t, []string{"open:/ws/labs/lab-1/state"}, srv.eventLog()[:1])

	srv.mu.Lock()
	assert.Equal(t, "Bearer secret", srv.headers[0].Get("Authorization"))
	srv.mu.Unlock()
}

func TestReconnectBackoffScenario(t *testing.T) {
	srv := newLabServer(t, func(n int, c *websocket.Conn) {
		if n == 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte(initialState))
			// let the client apply the state, then drop the connection
			time.Sleep(50 * time.Millisecond)
			_ = c.UnderlyingConn().Close()
		}
	})
	dialer := &flakyDialer{
		failOn: map[int]bool{2: true},
		inner:  websocket.DefaultDialer,
	}

	p := newProjection()
	log := &statusLog{}
	base := 40 * time.Millisecond
	m := newManager(t, srv.URL, p, func(o *connection.Options) {
		o.Dialer = dialer
		o.BackoffBase = base
	})
	m.OnStateChange(log.record)

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	require.Eventually(t, func() bool { return len(p.Nodes()) == 2 }, 2*time.Second, 5*time.Millisecond)

	// connected again on the third dial
	require.Eventually(t, func() bool {
		return srv.connCount() == 2 && m.Status().State == connection.Connected
	}, 3*time.Second, 5*time.Millisecond)

	var reconnecting []connection.Status
	for _, s := range log.all() {
		if s.State == connection.Reconnecting {
			reconnecting = append(reconnecting, s)
		}
	}
	require.Len(t, reconnecting, 2)
	assert.Equal(t, 1, reconnecting[0].Attempt)
	assert.Equal(t, base, reconnecting[0].Delay)
	assert.Equal(t, 2, reconnecting[1].Attempt)
	assert.Equal(t, 2*base, reconnecting[1].Delay)
	assert.True(t, pkgerrors.IsTransport(reconnecting[1].LastError))

	st := m.Status()
	assert.Equal(t, 0, st.Attempt)
	assert.Empty(t, p.Nodes(), "mappings stay empty until the next initial_state")
}

func TestDefaultFirstRetryDelay(t *testing.T) {
	dialer := &flakyDialer{failOn: map[int]bool{1: true}, inner: websocket.DefaultDialer}
	log := &statusLog{}
	m := newManager(t, "http://127.0.0.1:1", newProjection(), func(o *connection.Options) {
		o.Dialer = dialer
		o.BackoffBase = 0
		o.BackoffMax = 0
	})
	m.OnStateChange(log.record)

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	waitState(t, m, connection.Reconnecting)

	st := m.Status()
	assert.Equal(t, time.Second, st.Delay)
	assert.Equal(t, 1, st.Attempt)
	assert.WithinDuration(t, time.Now().Add(time.Second), st.NextRetry, 500*time.Millisecond)

	m.Disconnect()
	assert.Equal(t, connection.Disconnected, m.Status().State)
}

func TestDisconnectDoesNotRetry(t *testing.T) {
	srv := newLabServer(t, nil)
	m := newManager(t, srv.URL, newProjection(), nil)

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	waitState(t, m, connection.Connected)

	m.Disconnect()
	assert.Equal(t, connection.Disconnected, m.Status().State)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount())
	assert.Equal(t, connection.Disconnected, m.Status().State)
	assert.Contains(t, srv.eventLog(), "close:/ws/labs/lab-1/state", "clean disconnect sends a close frame")
}

func TestResubscribeTearsDownFirst(t *testing.T) {
	srv := newLabServer(t, func(_ int, c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(initialState))
	})
	p := newProjection()
	m := newManager(t, srv.URL, p, nil)

	require.NoError(t, m.Connect(context.Background(), "lab-a"))
	waitState(t, m, connection.Connected)
	require.Eventually(t, func() bool { return len(p.Nodes()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Connect(context.Background(), "lab-b"))
	assert.Equal(t, "lab-b", m.Status().Resource)
	waitState(t, m, connection.Connected)

	require.Eventually(t, func() bool { return len(srv.eventLog()) >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"open:/ws/labs/lab-a/state",
		"close:/ws/labs/lab-a/state",
		"open:/ws/labs/lab-b/state",
	}, srv.eventLog()[:3])
}

func TestRefresh(t *testing.T) {
	srv := newLabServer(t, nil)
	m := newManager(t, srv.URL, newProjection(), nil)

	assert.ErrorIs(t, m.Refresh(), pkgerrors.ErrNotConnected)
	assert.Equal(t, connection.Disconnected, m.Status().State, "refresh while disconnected changes nothing")

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	waitState(t, m, connection.Connected)
	require.NoError(t, m.Refresh())

	require.Eventually(t, func() bool {
		return srv.receivedCount(`{"type":"refresh"}`) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestKeepAlivePings(t *testing.T) {
	srv := newLabServer(t, nil)
	m := newManager(t, srv.URL, newProjection(), func(o *connection.Options) {
		o.KeepAlive = 20 * time.Millisecond
	})

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	require.Eventually(t, func() bool {
		return srv.receivedCount(`{"type":"ping"}`) >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestContextCancelEndsSubscription(t *testing.T) {
	srv := newLabServer(t, nil)
	m := newManager(t, srv.URL, newProjection(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Connect(ctx, "lab-1"))
	waitState(t, m, connection.Connected)

	cancel()
	waitState(t, m, connection.Disconnected)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount())
}

func TestCloseRejectsConnect(t *testing.T) {
	m := newManager(t, "http://localhost", newProjection(), nil)
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Connect(context.Background(), "lab-1"), pkgerrors.ErrClosed)
}

func TestConnectRejectsBadBase(t *testing.T) {
	m := newManager(t, "not a url ::", newProjection(), nil)
	err := m.Connect(context.Background(), "lab-1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "base_url"))
}

const labStopped = `{"type":"lab_state","data":{"lab_id":"lab-1","state":"stopped"}}`

// returnsWithin fails the test when fn does not return in time.
func returnsWithin(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return", what)
	}
}

func TestDisconnectFromHook(t *testing.T) {
	srv := newLabServer(t, func(_ int, c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(labStopped))
	})
	p := newProjection()
	m := newManager(t, srv.URL, p, nil)

	returned := make(chan struct{})
	var once sync.Once
	p.OnLabState(func(lab projection.LabState) {
		if lab.State != "stopped" {
			return
		}
		m.Disconnect()
		once.Do(func() { close(returned) })
	})

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	select {
	case <-returned:
	case <-time.After(3 * time.Second):
		t.Fatal("Disconnect called from a lab_state hook did not return")
	}
	waitState(t, m, connection.Disconnected)
	assert.Contains(t, srv.eventLog(), "close:/ws/labs/lab-1/state")

	returnsWithin(t, 3*time.Second, "Close", func() { assert.NoError(t, m.Close()) })
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, srv.connCount(), "no retry after a disconnect from a hook")
}

func TestDisconnectFromStateListener(t *testing.T) {
	srv := newLabServer(t, nil)
	m := newManager(t, srv.URL, newProjection(), nil)

	var once sync.Once
	m.OnStateChange(func(st connection.Status) {
		if st.State == connection.Connected {
			once.Do(m.Disconnect)
		}
	})

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	waitState(t, m, connection.Disconnected)
	require.Eventually(t, func() bool { return srv.connCount() == 1 }, time.Second, 5*time.Millisecond)
	returnsWithin(t, 3*time.Second, "Close", func() { assert.NoError(t, m.Close()) })
}

func TestConnectFromHook(t *testing.T) {
	srv := newLabServer(t, func(n int, c *websocket.Conn) {
		if n == 1 {
			_ = c.WriteMessage(websocket.TextMessage, []byte(labStopped))
		}
	})
	p := newProjection()
	m := newManager(t, srv.URL, p, nil)

	var once sync.Once
	p.OnLabState(func(lab projection.LabState) {
		once.Do(func() {
			assert.NoError(t, m.Connect(context.Background(), "lab-2"))
		})
	})

	require.NoError(t, m.Connect(context.Background(), "lab-1"))
	require.Eventually(t, func() bool {
		st := m.Status()
		return st.State == connection.Connected && st.Resource == "lab-2"
	}, 3*time.Second, 5*time.Millisecond)

	// the old loop exiting must not clear the new subscription
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, connection.Connected, m.Status().State)
	assert.Equal(t, "lab-2", m.Status().Resource)
	require.NoError(t, m.Refresh())

	returnsWithin(t, 3*time.Second, "Close", func() { assert.NoError(t, m.Close()) })
	assert.Equal(t, connection.Disconnected, m.Status().State)
}

func TestDisconnectFromResyncHook(t *testing.T) {
	srv := newLabServer(t, nil)
	p := newProjection()
	m := newManager(t, srv.URL, p, nil)

	var once sync.Once
	p.OnResync(func(projection.Snapshot) { once.Do(m.Disconnect) })

	returnsWithin(t, 3*time.Second, "Connect", func() {
		assert.NoError(t, m.Connect(context.Background(), "lab-1"))
	})
	waitState(t, m, connection.Disconnected)
	returnsWithin(t, 3*time.Second, "Close", func() { assert.NoError(t, m.Close()) })
}
