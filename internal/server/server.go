// Package server is the HTTP and WebSocket surface of the duel backend.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/tokenduel/internal/domain"
	"github.com/alanyoungcy/tokenduel/internal/server/handler"
	"github.com/alanyoungcy/tokenduel/internal/server/middleware"
	"github.com/alanyoungcy/tokenduel/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // empty disables authentication
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the route handlers. Nil groups are not registered.
type Handlers struct {
	Health *handler.HealthHandler
	Prices *handler.PriceHandler
	Quotes *handler.QuoteHandler
	Score  *handler.ScoreHandler
	Duels  *handler.DuelHandler
	Tokens *handler.TokenHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// limiter and hub may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	if h := handlers.Health; h != nil {
		mux.HandleFunc("GET /api/health", h.HealthCheck)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	if h := handlers.Prices; h != nil {
		mux.HandleFunc("GET /api/prices", h.ListPrices)
		mux.HandleFunc("GET /api/prices/{token}", h.GetPrice)
	}
	if h := handlers.Quotes; h != nil {
		mux.HandleFunc("GET /api/quotes/{network}/{pair}", h.GetQuote)
	}
	if h := handlers.Score; h != nil {
		mux.HandleFunc("POST /api/score", h.ScorePick)
		mux.HandleFunc("POST /api/rounds/score", h.ScoreRound)
	}
	if h := handlers.Duels; h != nil {
		mux.HandleFunc("POST /api/duels", h.CreateRoom)
		mux.HandleFunc("GET /api/duels/{id}", h.GetRoom)
		mux.HandleFunc("POST /api/duels/{id}/join", h.JoinRoom)
		mux.HandleFunc("POST /api/duels/{id}/cancel", h.CancelRoom)
		mux.HandleFunc("PUT /api/duels/{id}/picks", h.SetPicks)
		mux.HandleFunc("POST /api/duels/{id}/picks/lock", h.LockPick)
		mux.HandleFunc("POST /api/duels/{id}/settle", h.Settle)
		mux.HandleFunc("GET /api/users/{id}/balance", h.Balance)
	}
	if h := handlers.Tokens; h != nil {
		mux.HandleFunc("GET /api/tokens", h.ListTokens)
		mux.HandleFunc("GET /api/tokens/{id}/quote", h.GetTokenQuote)
		mux.HandleFunc("GET /api/snapshots/{day}", h.ListSnapshots)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	// Outermost first: CORS, logging, rate limit, auth.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
