package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// BalanceSource defines the wallet view the balances handler requires.
type BalanceSource interface {
	Balances(ctx context.Context) (domain.WalletBalances, error)
}

// BalanceHandler serves the wallet balance snapshot.
type BalanceHandler struct {
	balances BalanceSource
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler with the given source and logger.
func NewBalanceHandler(balances BalanceSource, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, logger: logHandler(logger, "balances")}
}

// GetBalances returns current native, base, and quote token balances.
// GET /api/balances
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.balances.Balances(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read balances failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balances")
		return
	}
	writeJSON(w, http.StatusOK, balances)
}
