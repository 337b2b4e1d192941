package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// BotControl is the orchestrator surface exposed over the API.
type BotControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() domain.BotStatus
}

// BotHandler serves run-control endpoints.
type BotHandler struct {
	bot    BotControl
	logger *slog.Logger
}

// NewBotHandler creates a BotHandler with the given control surface.
func NewBotHandler(bot BotControl, logger *slog.Logger) *BotHandler {
	return &BotHandler{bot: bot, logger: logHandler(logger, "bot")}
}

// GetStatus responds with the orchestrator's current state.
// GET /api/status
func (h *BotHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bot.Status())
}

// Start launches the trading loop.
// POST /api/bot/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.bot.Start(r.Context()); err != nil {
		if errors.Is(err, domain.ErrBotRunning) {
			writeError(w, http.StatusConflict, "bot already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: start failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start bot")
		return
	}
	writeJSON(w, http.StatusOK, h.bot.Status())
}

// Stop halts the trading loop. Monitors for open positions keep running.
// POST /api/bot/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.bot.Stop(r.Context()); err != nil {
		if errors.Is(err, domain.ErrBotStopped) {
			writeError(w, http.StatusConflict, "bot not running")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: stop failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to stop bot")
		return
	}
	writeJSON(w, http.StatusOK, h.bot.Status())
}
