package settingsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/settingsync"
	"github.com/agentstation/labsync/pkg/store"
)

// fakeRemote is an in-process preference store.
type fakeRemote struct {
	mu       sync.Mutex
	prefs    preferences.UserPreferences
	getErr   error
	patchErr error
	gets     int
	patches  []string

	// gate, when set, blocks PatchPreferences until it is closed.
	gate chan struct{}
	// override, when set, rewrites the merged aggregate before it is returned.
	override func(*preferences.UserPreferences)
}

func (f *fakeRemote) GetPreferences(context.Context) (preferences.UserPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.prefs, f.getErr
}

func (f *fakeRemote) PatchPreferences(_ context.Context, partial any) (preferences.UserPreferences, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := json.Marshal(partial)
	f.patches = append(f.patches, string(body))
	if f.patchErr != nil {
		return preferences.UserPreferences{}, f.patchErr
	}
	if err := json.Unmarshal(body, &f.prefs); err != nil {
		return preferences.UserPreferences{}, err
	}
	if f.override != nil {
		f.override(&f.prefs)
	}
	return f.prefs, nil
}

func loggedIn() bool  { return true }
func loggedOut() bool { return false }

func newSync(remote settingsync.Remote, session settingsync.Session, s *store.Store) *settingsync.Synchronizer {
	logger := zerolog.Nop()
	return settingsync.New(settingsync.Options{
		Remote:  remote,
		Session: session,
		Store:   s,
		Logger:  &logger,
	})
}

func TestLoadUnauthenticatedUsesDefaultsWithoutRequest(t *testing.T) {
	remote := &fakeRemote{}
	s := newSync(remote, loggedOut, nil)

	prefs, src := s.Load(context.Background())
	assert.Equal(t, settingsync.SourceDefaults, src)
	assert.Equal(t, preferences.Defaults(), prefs)
	assert.Equal(t, 0, remote.gets)
}

func TestLoadFromRemote(t *testing.T) {
	want := preferences.Defaults()
	want.NotificationSettings.Bell.MaxHistory = 7
	remote := &fakeRemote{prefs: want}
	st := store.New(store.NewMemory(), nil)
	s := newSync(remote, loggedIn, st)

	var changed []preferences.UserPreferences
	s.OnChange(func(p preferences.UserPreferences) { changed = append(changed, p) })

	prefs, src := s.Load(context.Background())
	assert.Equal(t, settingsync.SourceRemote, src)
	assert.Equal(t, want, prefs)
	assert.Equal(t, want, s.Current())
	require.Len(t, changed, 1)

	persisted, ok, err := store.Get[preferences.UserPreferences](st, constants.PreferencesKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, persisted)
}

func TestLoadFailureFallsBack(t *testing.T) {
	remote := &fakeRemote{getErr: errors.New("connection refused")}

	t.Run("defaults without a persisted copy", func(t *testing.T) {
		s := newSync(remote, loggedIn, store.New(store.NewMemory(), nil))
		prefs, src := s.Load(context.Background())
		assert.Equal(t, settingsync.SourceDefaults, src)
		assert.Equal(t, preferences.Defaults(), prefs)
	})

	t.Run("persisted copy when present", func(t *testing.T) {
		st := store.New(store.NewMemory(), nil)
		cached := preferences.Defaults()
		cached.CanvasSettings.ConsoleInBottomPanel = true
		require.NoError(t, store.Set(st, constants.PreferencesKey, cached))

		s := newSync(remote, loggedIn, st)
		prefs, src := s.Load(context.Background())
		assert.Equal(t, settingsync.SourceStore, src)
		assert.True(t, prefs.CanvasSettings.ConsoleInBottomPanel)
	})
}

func TestCanvasUpdateIsOptimisticThenServerWins(t *testing.T) {
	remote := &fakeRemote{
		prefs: preferences.Defaults(),
		gate:  make(chan struct{}),
		// the server validates the request and turns the flag back off
		override: func(p *preferences.UserPreferences) {
			p.CanvasSettings.ShowAgentIndicators = false
			p.CanvasSettings.SidebarFilters.ShowStopped = false
		},
	}
	s := newSync(remote, loggedIn, nil)
	s.Load(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.UpdateCanvasSettings(context.Background(), preferences.CanvasSettingsPatch{
			ShowAgentIndicators: preferences.Ptr(true),
		})
	}()

	// visible before any response arrives
	require.Eventually(t, func() bool {
		return s.Current().CanvasSettings.ShowAgentIndicators
	}, time.Second, time.Millisecond)

	close(remote.gate)
	require.NoError(t, <-done)

	cur := s.Current()
	assert.False(t, cur.CanvasSettings.ShowAgentIndicators, "server response replaces the optimistic value")
	assert.False(t, cur.CanvasSettings.SidebarFilters.ShowStopped)

	require.Len(t, remote.patches, 1)
	assert.Contains(t, remote.patches[0], `"canvas_settings"`)
	assert.NotContains(t, remote.patches[0], `"notification_settings"`)
}

func TestNotificationUpdateMergesGroup(t *testing.T) {
	remote := &fakeRemote{prefs: preferences.Defaults()}
	s := newSync(remote, loggedIn, nil)
	s.Load(context.Background())

	err := s.UpdateNotificationSettings(context.Background(), preferences.NotificationSettingsPatch{
		Toasts: &preferences.ToastSettingsPatch{Position: preferences.Ptr(preferences.PositionTopLeft)},
	})
	require.NoError(t, err)

	cur := s.Current().NotificationSettings
	assert.Equal(t, preferences.PositionTopLeft, cur.Toasts.Position)
	assert.Equal(t, preferences.DefaultNotificationSettings().Toasts.Duration, cur.Toasts.Duration)
	assert.Equal(t, preferences.DefaultNotificationSettings().Bell, cur.Bell)

	var sent map[string]preferences.NotificationSettings
	require.NoError(t, json.Unmarshal([]byte(remote.patches[0]), &sent))
	assert.Equal(t, cur, sent["notification_settings"], "the whole merged group is sent")
}

func TestPatchFailureKeepsOptimisticValue(t *testing.T) {
	remote := &fakeRemote{prefs: preferences.Defaults(), patchErr: errors.New("502 bad gateway")}
	st := store.New(store.NewMemory(), nil)
	s := newSync(remote, loggedIn, st)
	s.Load(context.Background())

	err := s.UpdateNotificationSettings(context.Background(), preferences.NotificationSettingsPatch{
		Bell: &preferences.BellSettingsPatch{SoundEnabled: preferences.Ptr(true)},
	})
	require.Error(t, err)
	assert.True(t, s.Current().NotificationSettings.Bell.SoundEnabled)

	persisted, ok, _ := store.Get[preferences.UserPreferences](st, constants.PreferencesKey)
	require.True(t, ok)
	assert.True(t, persisted.NotificationSettings.Bell.SoundEnabled)
}

func TestUnauthenticatedUpdateStaysLocal(t *testing.T) {
	remote := &fakeRemote{}
	s := newSync(remote, loggedOut, nil)

	require.NoError(t, s.UpdateCanvasSettings(context.Background(), preferences.CanvasSettingsPatch{
		ConsoleInBottomPanel: preferences.Ptr(true),
	}))
	assert.True(t, s.Current().CanvasSettings.ConsoleInBottomPanel)
	assert.Empty(t, remote.patches)
}

func TestSupersededResponseIsDiscarded(t *testing.T) {
	remote := &fakeRemote{prefs: preferences.Defaults(), gate: make(chan struct{})}
	s := newSync(remote, loggedIn, nil)

	first := make(chan error, 1)
	go func() {
		first <- s.UpdateCanvasSettings(context.Background(), preferences.CanvasSettingsPatch{
			ShowAgentIndicators: preferences.Ptr(true),
		})
	}()
	require.Eventually(t, func() bool {
		return s.Current().CanvasSettings.ShowAgentIndicators
	}, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() {
		second <- s.UpdateCanvasSettings(context.Background(), preferences.CanvasSettingsPatch{
			ConsoleInBottomPanel: preferences.Ptr(true),
		})
	}()
	require.Eventually(t, func() bool {
		return s.Current().CanvasSettings.ConsoleInBottomPanel
	}, time.Second, time.Millisecond)

	close(remote.gate)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	cur := s.Current().CanvasSettings
	assert.True(t, cur.ShowAgentIndicators)
	assert.True(t, cur.ConsoleInBottomPanel)
}
