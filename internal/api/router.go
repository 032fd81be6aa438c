package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"kart-race/internal/race"
)

// EngineInterface is the slice of *race.Engine the API calls. Every method
// must be safe off the simulation goroutine.
type EngineInterface interface {
	// Snapshot returns the latest immutable race state
	Snapshot() *race.RaceSnapshot
	// Submit queues a command for the next tick
	Submit(cmd race.Command) error
	// Tunables returns the effective thresholds for the current level
	Tunables() race.Tunables
	// Level returns the current level id
	Level() string
}

// MinimapRenderer draws the top-down race view.
type MinimapRenderer interface {
	WritePNG(w io.Writer, snap *race.RaceSnapshot) error
}

// RouterConfig carries the router's dependencies. Tests pass a mock
// Engine and a generous RateLimitConfig.
type RouterConfig struct {
	// Engine is the race engine (required)
	Engine EngineInterface

	// Minimap is optional; without it /api/minimap.png answers 404.
	Minimap MinimapRenderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses local development origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine  EngineInterface
	minimap MinimapRenderer
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function starts no goroutines and opens no listeners
// beyond the rate limiter's cleanup loop when it has to create one.
// Pass RateLimiter to keep ownership of that loop.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// logger -> recoverer -> limiter -> cors
	if !cfg.DisableLogging {
		r.Use(requestLogger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		engine:  cfg.Engine,
		minimap: cfg.Minimap,
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(requestMetrics)

		// Race state
		r.Get("/state", h.handleGetState)
		r.Get("/rankings", h.handleGetRankings)
		r.Get("/tunables", h.handleGetTunables)
		r.Get("/minimap.png", h.handleGetMinimap)

		// Control
		r.Post("/action", h.handleAction)
		r.Post("/input", h.handleInput)
	})

	return r
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("ip", GetClientIP(r)).
			Msg("🌐 Request")
	})
}

// requestMetrics records latency per route pattern, never per raw URL.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		endpoint := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
