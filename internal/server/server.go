// Package server relays one labsync client to browsers and dashboards over
// HTTP, Server-Sent Events and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/labsync"
	"github.com/agentstation/labsync/internal/events"
	"github.com/agentstation/labsync/internal/events/adapters"
	"github.com/agentstation/labsync/internal/server/cache"
	"github.com/agentstation/labsync/internal/server/handlers"
	"github.com/agentstation/labsync/internal/server/sse"
	ws "github.com/agentstation/labsync/internal/server/websocket"
	"github.com/agentstation/labsync/pkg/connection"
	"github.com/agentstation/labsync/pkg/logging"
	"github.com/agentstation/labsync/pkg/notify"
	"github.com/agentstation/labsync/pkg/preferences"
	"github.com/agentstation/labsync/pkg/projection"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	client         labsync.Client
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	startTime      time.Time
}

// New creates a relay for client. Call Start before serving requests.
func New(client labsync.Client, cfg Config, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultConfig().PathPrefix
	}

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger, func() any { return client.Snapshot() })

	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		client:         client,
		cache:          cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	wsHub.OnMessage(s.handleCommand)
	s.connectHooks()
	return s
}

// connectHooks publishes every client event to the broker. Projection
// changes also drop the cached lab snapshot.
func (s *Server) connectHooks() {
	c := s.client

	c.OnNodeState(func(n projection.NodeState) {
		s.cache.Delete(handlers.LabCacheKey)
		s.broker.Publish(events.NodeState, n)
	})
	c.OnLinkState(func(l projection.LinkState) {
		s.cache.Delete(handlers.LabCacheKey)
		s.broker.Publish(events.LinkState, l)
	})
	c.OnLabState(func(l projection.LabState) {
		s.cache.Delete(handlers.LabCacheKey)
		s.broker.Publish(events.LabState, l)
	})
	c.OnJobProgress(func(j projection.JobProgress) {
		s.broker.Publish(events.JobProgress, j)
	})
	c.OnResync(func(snap projection.Snapshot) {
		s.cache.Delete(handlers.LabCacheKey)
		s.broker.Publish(events.Resync, snap)
	})
	c.OnConnectionState(func(st connection.Status) {
		s.broker.Publish(events.ConnectionState, handlers.StatusView(st))
	})
	c.OnNotification(func(ev notify.Event) {
		s.broker.Publish(events.EventType(ev.Type), ev)
	})
	c.OnPreferencesChange(func(p preferences.UserPreferences) {
		s.broker.Publish(events.PreferencesChanged, p)
	})

	s.logger.Debug().Msg("Client hooks connected to event broker")
}

// handleCommand serves commands sent by WebSocket displays.
func (s *Server) handleCommand(client *ws.Client, msg ws.Message) {
	switch msg.Type {
	case "refresh":
		if err := s.client.Refresh(); err != nil {
			s.logger.Debug().Err(err).Str("client_id", client.ID()).Msg("Refresh command failed")
		}
	case "mark_all_read":
		s.client.Notifications().MarkAllAsRead()
	default:
		s.logger.Debug().Str("client_id", client.ID()).Str("type", msg.Type).Msg("Ignoring unknown command")
	}
}

// Start starts background services (broker, WebSocket hub, SSE broadcaster).
func (s *Server) Start() {
	for _, run := range []func(context.Context){s.broker.Run, s.wsHub.Run, s.sseBroadcaster.Run} {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			run(s.ctx)
		}()
	}
	s.logger.Debug().Msg("Background services started")
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// ListenAndServe serves the relay on the configured address until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.Start()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("Relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Stop the transports first so open streams end and Shutdown can drain.
	err := s.Shutdown(shutdownCtx)
	if herr := srv.Shutdown(shutdownCtx); herr != nil && err == nil {
		err = herr
	}
	return err
}

// Shutdown stops the background services and waits for them to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down relay background services")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
