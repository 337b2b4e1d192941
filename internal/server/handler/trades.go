package handler

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// TradeReader defines the methods the trade handler requires.
type TradeReader interface {
	ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves the trade history and its CSV export.
type TradeHandler struct {
	trades TradeReader
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given store and logger.
func NewTradeHandler(trades TradeReader, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logHandler(logger, "trades")}
}

// listTradesResponse wraps the list trades response.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns recent trades, newest first.
// GET /api/trades?limit=&offset=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListRecent(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// ExportTrades streams the trade history as a CSV attachment.
// GET /api/trades/export?limit=
func (h *TradeHandler) ExportTrades(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	opts.Limit = 10_000
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 10_000 {
			opts.Limit = n
		}
	}

	trades, err := h.trades.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: export trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to export trades")
		return
	}

	filename := fmt.Sprintf("trades-%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"id", "type", "amount", "entry_price", "exit_price",
		"profit_pct", "profit_usd", "expected_out", "tx_hash", "timestamp",
	})
	for _, t := range trades {
		_ = cw.Write([]string{
			t.ID,
			string(t.Type),
			strconv.FormatFloat(t.Amount, 'f', -1, 64),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ProfitPct, 'f', -1, 64),
			strconv.FormatFloat(t.ProfitUSD, 'f', -1, 64),
			strconv.FormatFloat(t.ExpectedOut, 'f', -1, 64),
			t.TxHash,
			t.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
}
