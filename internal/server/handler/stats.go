package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// StatsSource defines the aggregate queries the stats handler requires.
type StatsSource interface {
	Stats(ctx context.Context, day time.Time) (domain.TradeStats, error)
	EquityCurve(ctx context.Context) ([]domain.EquityPoint, error)
}

// StatsHandler serves realised-performance aggregates.
type StatsHandler struct {
	stats  StatsSource
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler with the given source and logger.
func NewStatsHandler(stats StatsSource, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logHandler(logger, "stats")}
}

// GetStats returns totals, today's profit, win rate, and average profit.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// equityResponse wraps the equity curve response.
type equityResponse struct {
	Equity []domain.EquityPoint `json:"equity"`
}

// GetEquityCurve returns the cumulative realised-profit series.
// GET /api/stats/equity
func (h *StatsHandler) GetEquityCurve(w http.ResponseWriter, r *http.Request) {
	points, err := h.stats.EquityCurve(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: equity curve failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute equity curve")
		return
	}

	if points == nil {
		points = []domain.EquityPoint{}
	}
	writeJSON(w, http.StatusOK, equityResponse{Equity: points})
}
