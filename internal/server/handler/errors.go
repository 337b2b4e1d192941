package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// ErrorReader defines the methods the error-log handler requires.
type ErrorReader interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ErrorEntry, error)
}

// ErrorHandler serves the operational error log.
type ErrorHandler struct {
	errs   ErrorReader
	logger *slog.Logger
}

// NewErrorHandler creates an ErrorHandler with the given store and logger.
func NewErrorHandler(errs ErrorReader, logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{errs: errs, logger: logHandler(logger, "errors")}
}

// listErrorsResponse wraps the list errors response.
type listErrorsResponse struct {
	Errors []domain.ErrorEntry `json:"errors"`
}

// ListErrors returns recent error-log entries, newest first.
// GET /api/errors?limit=&offset=
func (h *ErrorHandler) ListErrors(w http.ResponseWriter, r *http.Request) {
	entries, err := h.errs.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list errors failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list errors")
		return
	}

	if entries == nil {
		entries = []domain.ErrorEntry{}
	}
	writeJSON(w, http.StatusOK, listErrorsResponse{Errors: entries})
}
