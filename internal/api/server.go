package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ServerConfig wires the HTTP server.
type ServerConfig struct {
	Addr        string
	Engine      EngineInterface
	Minimap     MinimapRenderer
	CORSOrigins []string
	Hub         HubConfig
	RateLimit   *RateLimitConfig
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server.
//
// IMPORTANT: The hub and broadcast workers do NOT start until Start() is
// called. For testing HTTP endpoints use Router() with httptest.
func NewServer(cfg ServerConfig) *Server {
	rl := DefaultRateLimitConfig
	if cfg.RateLimit != nil {
		rl = *cfg.RateLimit
	}
	if cfg.Hub.AllowedOrigins == nil {
		cfg.Hub.AllowedOrigins = cfg.CORSOrigins
	}

	s := &Server{
		wsHub:       NewWebSocketHub(cfg.Engine, cfg.Hub),
		rateLimiter: NewIPRateLimiter(rl),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      cfg.Engine,
		Minimap:     cfg.Minimap,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
	})

	// WebSocket routes need the hub instance, so they live outside NewRouter.
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start starts the hub workers and serves HTTP until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop()

	log.Info().Str("addr", s.httpServer.Addr).Msg("🌐 API server starting")
	return s.httpServer.ListenAndServe()
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops background workers and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
