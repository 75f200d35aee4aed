package server

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/labsync"
	"github.com/agentstation/labsync/pkg/connection"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/notify"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/projection"
	"github.com/agentstation/labsync/pkg/settingsync"
)

var _ labsync.Client = (*fakeClient)(nil)

// fakeClient is an in-memory labsync.Client whose hooks can be fired by tests.
type fakeClient struct {
	mu        sync.Mutex
	status    connection.Status
	nodes     map[string]projection.NodeState
	links     map[string]projection.LinkState
	lab       *projection.LabState
	prefs     preferences.UserPreferences
	saveErr   error
	refreshes int
	snapshots int

	router *notify.Router

	nodeHooks   []projection.NodeStateHook
	labHooks    []projection.LabStateHook
	statusHooks []labsync.ConnectionStateHook
}

func newFakeClient(t *testing.T) *fakeClient {
	t.Helper()
	logger := zerolog.Nop()
	router := notify.NewRouter(notify.Options{Logger: &logger})
	t.Cleanup(func() { _ = router.Close() })
	return &fakeClient{
		status: connection.Status{State: connection.Disconnected},
		nodes:  map[string]projection.NodeState{},
		links:  map[string]projection.LinkState{},
		prefs:  preferences.Defaults(),
		router: router,
	}
}

func (f *fakeClient) Connect(context.Context, string) error { return nil }
func (f *fakeClient) Disconnect()                           {}

func (f *fakeClient) Refresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.State != connection.Connected {
		return errors.ErrNotConnected
	}
	f.refreshes++
	return nil
}

func (f *fakeClient) Status() connection.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeClient) Nodes() map[string]projection.NodeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]projection.NodeState, len(f.nodes))
	for k, v := range f.nodes {
		out[k] = v
	}
	return out
}

func (f *fakeClient) Links() map[string]projection.LinkState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]projection.LinkState, len(f.links))
	for k, v := range f.links {
		out[k] = v
	}
	return out
}

func (f *fakeClient) Lab() (projection.LabState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lab == nil {
		return projection.LabState{}, false
	}
	return *f.lab, true
}

func (f *fakeClient) Snapshot() projection.Snapshot {
	f.mu.Lock()
	f.snapshots++
	lab := f.lab
	f.mu.Unlock()
	return projection.Snapshot{Lab: lab, Nodes: f.Nodes(), Links: f.Links(), Taken: time.Now()}
}

func (f *fakeClient) Notify(level notify.Level, title, message string, opts ...notify.Option) (notify.Notification, bool) {
	return f.router.Add(level, title, message, opts...)
}

func (f *fakeClient) Notifications() *notify.Router { return f.router }

func (f *fakeClient) Preferences() preferences.UserPreferences {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs
}

func (f *fakeClient) LoadPreferences(context.Context) (preferences.UserPreferences, settingsync.Source) {
	return f.Preferences(), settingsync.SourceDefaults
}

func (f *fakeClient) UpdateNotificationSettings(_ context.Context, patch preferences.NotificationSettingsPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs.NotificationSettings = patch.Apply(f.prefs.NotificationSettings)
	return f.saveErr
}

func (f *fakeClient) UpdateCanvasSettings(_ context.Context, patch preferences.CanvasSettingsPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs.CanvasSettings = patch.Apply(f.prefs.CanvasSettings)
	return f.saveErr
}

func (f *fakeClient) OnNodeState(fn projection.NodeStateHook) { f.nodeHooks = append(f.nodeHooks, fn) }
func (f *fakeClient) OnLinkState(projection.LinkStateHook)     {}
func (f *fakeClient) OnLabState(fn projection.LabStateHook)    { f.labHooks = append(f.labHooks, fn) }
func (f *fakeClient) OnJobProgress(projection.JobProgressHook) {}
func (f *fakeClient) OnResync(projection.ResyncHook)           {}
func (f *fakeClient) OnConnectionState(fn labsync.ConnectionStateHook) {
	f.statusHooks = append(f.statusHooks, fn)
}
func (f *fakeClient) OnNotification(fn labsync.NotificationHook) {
	f.router.Subscribe(func(ev notify.Event) { fn(ev) })
}
func (f *fakeClient) OnPreferencesChange(labsync.PreferencesHook) {}
func (f *fakeClient) Close() error                                { return nil }

// setNode stores a node and fires the node hooks, like the projection does.
func (f *fakeClient) setNode(n projection.NodeState) {
	f.mu.Lock()
	f.nodes[n.NodeID] = n
	f.mu.Unlock()
	for _, fn := range f.nodeHooks {
		fn(n)
	}
}

func (f *fakeClient) setState(state connection.State) {
	f.mu.Lock()
	f.status = connection.Status{State: state, Resource: "lab-1", Since: time.Now()}
	st := f.status
	f.mu.Unlock()
	for _, fn := range f.statusHooks {
		fn(st)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CacheTTL = time.Minute
	return cfg
}

// startServer starts a relay over client and returns its test HTTP server.
func startServer(t *testing.T, client labsync.Client, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	logger := zerolog.Nop()
	srv := New(client, cfg, &logger)
	srv.Start()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func do(t *testing.T, method, url, body string) (*http.Response, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

func TestServerLifecycleDoesNotBlock(t *testing.T) {
	logger := zerolog.Nop()
	srv := New(newFakeClient(t), testConfig(), &logger)

	done := make(chan struct{})
	go func() {
		srv.Start()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start/Shutdown did not complete")
	}
}

func TestHealthAndReady(t *testing.T) {
	client := newFakeClient(t)
	_, ts := startServer(t, client, testConfig())

	resp, _ := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := do(t, http.MethodGet, ts.URL+"/api/v1/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, env.Error)

	client.setState(connection.Connected)
	resp, env = do(t, http.MethodGet, ts.URL+"/api/v1/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"state":"connected"`)
}

func TestLabSnapshotIsCachedUntilChange(t *testing.T) {
	client := newFakeClient(t)
	_, ts := startServer(t, client, testConfig())

	_, env := do(t, http.MethodGet, ts.URL+"/api/v1/lab", "")
	assert.Contains(t, string(env.Data), `"nodes":{}`)
	do(t, http.MethodGet, ts.URL+"/api/v1/lab", "")

	client.mu.Lock()
	assert.Equal(t, 1, client.snapshots, "second read is served from cache")
	client.mu.Unlock()

	client.setNode(projection.NodeState{NodeID: "r1", ActualState: "running"})
	_, env = do(t, http.MethodGet, ts.URL+"/api/v1/lab", "")
	assert.Contains(t, string(env.Data), `"node_id":"r1"`)
}

func TestNodesUseSidebarFilters(t *testing.T) {
	client := newFakeClient(t)
	client.prefs.CanvasSettings.SidebarFilters.ShowStopped = false
	_, ts := startServer(t, client, testConfig())

	client.setNode(projection.NodeState{NodeID: "r1", ActualState: "running"})
	client.setNode(projection.NodeState{NodeID: "r2", ActualState: "stopped"})

	var list struct {
		Nodes []projection.NodeState `json:"nodes"`
		Count int                    `json:"count"`
	}
	_, env := do(t, http.MethodGet, ts.URL+"/api/v1/nodes", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "r1", list.Nodes[0].NodeID)

	_, env = do(t, http.MethodGet, ts.URL+"/api/v1/nodes?stopped=true", "")
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Count)

	resp, env := do(t, http.MethodGet, ts.URL+"/api/v1/nodes/r2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"bucket":"stopped"`)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/nodes/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefreshNeedsConnection(t *testing.T) {
	client := newFakeClient(t)
	_, ts := startServer(t, client, testConfig())

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/refresh", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	client.setState(connection.Connected)
	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/refresh", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	client.mu.Lock()
	assert.Equal(t, 1, client.refreshes)
	client.mu.Unlock()
}

func TestNotificationEndpoints(t *testing.T) {
	client := newFakeClient(t)
	_, ts := startServer(t, client, testConfig())
	base := ts.URL + "/api/v1"

	body := `{"level":"error","title":"Deploy failed","message":"lab-1"}`
	resp, env := do(t, http.MethodPost, base+"/notifications", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Notification notify.Notification `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	id := created.Notification.ID

	resp, env = do(t, http.MethodPost, base+"/notifications", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"created":false}`, string(env.Data))

	resp, _ = do(t, http.MethodPost, base+"/notifications", `{"level":"fatal","title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodPost, base+"/notifications", `{"level":"info"`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, env = do(t, http.MethodGet, base+"/notifications", "")
	assert.Contains(t, string(env.Data), `"unread":1`)

	resp, _ = do(t, http.MethodPost, base+"/notifications/"+id+"/read", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, client.router.UnreadCount())
	resp, _ = do(t, http.MethodPost, base+"/notifications/nope/read", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodDelete, base+"/toasts/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, client.router.Toasts())
	assert.Len(t, client.router.History(), 1, "dismissing a toast keeps the bell entry")

	resp, _ = do(t, http.MethodDelete, base+"/notifications", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, client.router.History())
}

func TestPatchPreferences(t *testing.T) {
	client := newFakeClient(t)
	_, ts := startServer(t, client, testConfig())
	url := ts.URL + "/api/v1/preferences"

	resp, _ := do(t, http.MethodPatch, url, `{"notification_settings":{"toasts":{"position":"middle"}}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, preferences.Defaults(), client.Preferences(), "invalid settings are not applied")

	resp, _ = do(t, http.MethodPatch, url, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env := do(t, http.MethodPatch, url, `{"canvas_settings":{"console_in_bottom_panel":true}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"saved":true`)
	assert.True(t, client.Preferences().CanvasSettings.ConsoleInBottomPanel)

	client.mu.Lock()
	client.saveErr = stderrors.New("502 bad gateway")
	client.mu.Unlock()
	_, env = do(t, http.MethodPatch, url, `{"notification_settings":{"bell":{"sound_enabled":true}}}`)
	assert.Contains(t, string(env.Data), `"saved":false`)
	assert.Contains(t, string(env.Data), `"sync_error":"502 bad gateway"`)
	assert.True(t, client.Preferences().NotificationSettings.Bell.SoundEnabled, "local value is kept")
}

func TestAuthProtectsAPI(t *testing.T) {
	cfg := testConfig()
	cfg.AuthEnabled = true
	cfg.APIKey = "s3cret"
	_, ts := startServer(t, newFakeClient(t), cfg)

	resp, _ := do(t, http.MethodGet, ts.URL+"/api/v1/lab", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/lab?api_key=s3cret", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/v1/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamRelaysHooks(t *testing.T) {
	client := newFakeClient(t)
	client.setNode(projection.NodeState{NodeID: "r1", ActualState: "stopped"})
	srv, ts := startServer(t, client, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/updates/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan())
		return lines.Text()
	}

	assert.Equal(t, "event: connected", next())
	assert.Contains(t, next(), `"node_id":"r1"`, "hello carries the snapshot")
	next()

	require.Eventually(t, func() bool { return srv.sseBroadcaster.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	client.setNode(projection.NodeState{NodeID: "r1", ActualState: "running"})
	assert.Equal(t, "event: node.state", next())
	assert.Equal(t, "id: 1", next())
	assert.Contains(t, next(), `"actual_state":"running"`)
	next()

	client.Notify(notify.LevelInfo, "hello", "")
	assert.Equal(t, "event: notification.added", next())
}
