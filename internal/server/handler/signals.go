package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// SignalReader defines the methods the signal handler requires.
type SignalReader interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Signal, error)
}

// SignalHandler serves the signal history.
type SignalHandler struct {
	signals SignalReader
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler with the given store and logger.
func NewSignalHandler(signals SignalReader, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{signals: signals, logger: logHandler(logger, "signals")}
}

// listSignalsResponse wraps the list signals response.
type listSignalsResponse struct {
	Signals []domain.Signal `json:"signals"`
}

// ListSignals returns recent signals, newest first.
// GET /api/signals?limit=&offset=
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := h.signals.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	if signals == nil {
		signals = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, listSignalsResponse{Signals: signals})
}
