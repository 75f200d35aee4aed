// Package settingsync keeps the user's notification and canvas settings in
// step with the remote preference store.
//
// Updates are applied locally first, then sent to the store. A successful
// answer replaces the local copy with the server's authoritative aggregate.
// A failed patch is logged and the local value stays; nothing is rolled back
// and no notification is raised.
package settingsync

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/logging"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/store"
)

// Remote is the preference store API.
type Remote interface {
	GetPreferences(ctx context.Context) (preferences.UserPreferences, error)
	PatchPreferences(ctx context.Context, partial any) (preferences.UserPreferences, error)
}

// Session reports whether the user is authenticated.
type Session func() bool

// Source tells where the loaded preferences came from.
type Source string

// Preference sources.
const (
	SourceRemote   Source = "remote"
	SourceStore    Source = "store"
	SourceDefaults Source = "defaults"
)

// Options configures a Synchronizer.
type Options struct {
	Remote  Remote
	Session Session
	// Store keeps the last known aggregate for when the remote is unreachable.
	Store  *store.Store
	Logger *zerolog.Logger
}

// Synchronizer is the single owner of the in-memory preference aggregate.
type Synchronizer struct {
	remote  Remote
	session Session
	store   *store.Store
	logger  *zerolog.Logger

	mu        sync.Mutex
	current   preferences.UserPreferences
	version   uint64
	listeners []func(preferences.UserPreferences)
}

// New creates a Synchronizer holding the default preferences.
func New(opts Options) *Synchronizer {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Synchronizer{
		remote:  opts.Remote,
		session: opts.Session,
		store:   opts.Store,
		logger:  opts.Logger,
		current: preferences.Defaults(),
	}
}

// OnChange registers fn to be called with every new local aggregate.
func (s *Synchronizer) OnChange(fn func(preferences.UserPreferences)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns the local aggregate.
func (s *Synchronizer) Current() preferences.UserPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Synchronizer) authenticated() bool {
	return s.remote != nil && s.session != nil && s.session()
}

// Load fetches the aggregate for a new session. Without a session the
// defaults are used and no request is made. When the fetch fails the last
// persisted copy is used, or the defaults when there is none.
func (s *Synchronizer) Load(ctx context.Context) (preferences.UserPreferences, Source) {
	if !s.authenticated() {
		s.logger.Debug().Msg("No session, using default preferences")
		s.replace(preferences.Defaults())
		return preferences.Defaults(), SourceDefaults
	}

	prefs, err := s.remote.GetPreferences(ctx)
	if err == nil {
		s.replace(prefs)
		s.persist(prefs)
		return prefs, SourceRemote
	}

	s.logger.Warn().Err(err).Msg("Failed to fetch preferences")
	if s.store != nil {
		cached, ok, cerr := store.Get[preferences.UserPreferences](s.store, constants.PreferencesKey)
		if cerr != nil {
			s.logger.Warn().Err(cerr).Msg("Ignoring unreadable persisted preferences")
		}
		if ok {
			s.replace(cached)
			return cached, SourceStore
		}
	}
	s.replace(preferences.Defaults())
	return preferences.Defaults(), SourceDefaults
}

// UpdateNotificationSettings merges patch into the notification settings,
// applies the result locally, then patches the remote store. The returned
// error is informational: the local value is kept either way.
func (s *Synchronizer) UpdateNotificationSettings(ctx context.Context, patch preferences.NotificationSettingsPatch) error {
	next, v := s.mutate(func(p *preferences.UserPreferences) {
		p.NotificationSettings = patch.Apply(p.NotificationSettings)
	})
	partial := map[string]any{"notification_settings": next.NotificationSettings}
	return s.push(ctx, v, partial, "notification_settings")
}

// UpdateCanvasSettings merges patch into the canvas settings, applies the
// result locally, then patches the remote store.
func (s *Synchronizer) UpdateCanvasSettings(ctx context.Context, patch preferences.CanvasSettingsPatch) error {
	next, v := s.mutate(func(p *preferences.UserPreferences) {
		p.CanvasSettings = patch.Apply(p.CanvasSettings)
	})
	partial := map[string]any{"canvas_settings": next.CanvasSettings}
	return s.push(ctx, v, partial, "canvas_settings")
}

// mutate edits the local aggregate in place and returns the result and its version.
func (s *Synchronizer) mutate(fn func(*preferences.UserPreferences)) (preferences.UserPreferences, uint64) {
	s.mu.Lock()
	fn(&s.current)
	s.version++
	next, v := s.current, s.version
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next, v
}

func (s *Synchronizer) push(ctx context.Context, version uint64, partial any, group string) error {
	if !s.authenticated() {
		s.persist(s.Current())
		return nil
	}

	resp, err := s.remote.PatchPreferences(ctx, partial)
	if err != nil {
		s.logger.Warn().Err(err).Str("group", group).Msg("Failed to save preferences, keeping local value")
		s.persist(s.Current())
		return errors.WrapResource("patch", "preferences", group, err)
	}

	// a newer local update supersedes this response
	if !s.replaceIf(resp, version) {
		s.logger.Debug().Str("group", group).Msg("Discarding superseded preference response")
		return nil
	}
	s.persist(resp)
	return nil
}

// replace swaps the aggregate and notifies listeners.
func (s *Synchronizer) replace(next preferences.UserPreferences) {
	s.mu.Lock()
	s.current = next
	s.version++
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

// replaceIf replaces the aggregate only while it is still at version.
func (s *Synchronizer) replaceIf(next preferences.UserPreferences, version uint64) bool {
	s.mu.Lock()
	if s.version != version {
		s.mu.Unlock()
		return false
	}
	s.current = next
	s.version++
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return true
}

func (s *Synchronizer) listenersLocked() []func(preferences.UserPreferences) {
	return append([]func(preferences.UserPreferences){}, s.listeners...)
}

func (s *Synchronizer) persist(prefs preferences.UserPreferences) {
	if s.store == nil {
		return
	}
	if err := store.Set(s.store, constants.PreferencesKey, prefs); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist preferences")
	}
}
