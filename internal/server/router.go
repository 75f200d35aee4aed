package server

import (
	"net/http"

	"github.com/agentstation/labsync/internal/server/handlers"
	"github.com/agentstation/labsync/internal/server/middleware"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(
		s.client,
		s.cache,
		s.wsHub,
		s.sseBroadcaster,
		&s.upgrader,
		s.logger,
		s.startTime,
	)

	s.registerRoutes(mux, h)
	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	p := s.config.PathPrefix

	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Health
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET "+p+"/health", h.HandleHealth)
	mux.HandleFunc("GET "+p+"/ready", h.HandleReady)

	// Lab state
	mux.HandleFunc("GET "+p+"/lab", h.HandleLab)
	mux.HandleFunc("GET "+p+"/status", h.HandleStatus)
	mux.HandleFunc("GET "+p+"/nodes", h.HandleListNodes)
	mux.HandleFunc("GET "+p+"/nodes/{id}", h.HandleGetNode)
	mux.HandleFunc("GET "+p+"/links", h.HandleListLinks)
	mux.HandleFunc("POST "+p+"/refresh", h.HandleRefresh)

	// Notifications
	mux.HandleFunc("GET "+p+"/notifications", h.HandleListNotifications)
	mux.HandleFunc("POST "+p+"/notifications", h.HandleCreateNotification)
	mux.HandleFunc("DELETE "+p+"/notifications", h.HandleClearNotifications)
	mux.HandleFunc("POST "+p+"/notifications/read", h.HandleMarkAllRead)
	mux.HandleFunc("POST "+p+"/notifications/{id}/read", h.HandleMarkRead)
	mux.HandleFunc("GET "+p+"/toasts", h.HandleListToasts)
	mux.HandleFunc("DELETE "+p+"/toasts/{id}", h.HandleDismissToast)

	// Preferences
	mux.HandleFunc("GET "+p+"/preferences", h.HandleGetPreferences)
	mux.HandleFunc("PATCH "+p+"/preferences", h.HandlePatchPreferences)

	// Real-time
	mux.HandleFunc("GET "+p+"/updates/ws", h.HandleWebSocket)
	mux.HandleFunc("GET "+p+"/updates/stream", h.HandleSSE)
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	if cfg.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit, s.logger)
		handler = middleware.RateLimit(rateLimiter)(handler)
	}

	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.APIKey = cfg.APIKey
		if cfg.AuthHeader != "" {
			authConfig.HeaderName = cfg.AuthHeader
		}
		authConfig.PublicPaths = []string{"/health", cfg.PathPrefix + "/health", cfg.PathPrefix + "/ready"}
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}
