// Package server exposes the bot's control and reporting API over HTTP and
// WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dexbot/internal/metrics"
	"github.com/alanyoungcy/dexbot/internal/server/handler"
	"github.com/alanyoungcy/dexbot/internal/server/middleware"
	"github.com/alanyoungcy/dexbot/internal/server/ws"
)

// Rate limit applied per client IP across the API.
const (
	rateLimitRequests = 120
	rateLimitWindow   = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Bot       *handler.BotHandler
	Signals   *handler.SignalHandler
	Trades    *handler.TradeHandler
	Errors    *handler.ErrorHandler
	Positions *handler.PositionHandler
	Balances  *handler.BalanceHandler
	Stats     *handler.StatsHandler
}

// Server is the headless HTTP + WebSocket API for the trading bot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. API routes sit
// behind auth, logging, rate-limit, and latency middleware; health and
// /metrics stay open for probes and scrapers.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter middleware.Limiter, logger *slog.Logger) *Server {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/status", handlers.Bot.GetStatus)
	api.HandleFunc("POST /api/bot/start", handlers.Bot.Start)
	api.HandleFunc("POST /api/bot/stop", handlers.Bot.Stop)

	api.HandleFunc("GET /api/signals", handlers.Signals.ListSignals)
	api.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	api.HandleFunc("GET /api/trades/export", handlers.Trades.ExportTrades)
	api.HandleFunc("GET /api/errors", handlers.Errors.ListErrors)
	api.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	api.HandleFunc("GET /api/balances", handlers.Balances.GetBalances)
	api.HandleFunc("GET /api/stats", handlers.Stats.GetStats)
	api.HandleFunc("GET /api/stats/equity", handlers.Stats.GetEquityCurve)

	if wsHub != nil {
		api.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var protected http.Handler = api
	protected = middleware.Auth(cfg.APIKey)(protected)
	if limiter != nil {
		protected = middleware.RateLimit(limiter, rateLimitRequests, rateLimitWindow)(protected)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	root.Handle("GET /metrics", metrics.Handler())
	root.Handle("/", protected)

	var h http.Handler = root
	h = middleware.Metrics()(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
