package domain

import "time"

// TradeType is the side of an executed swap.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// Trade is one executed (submitted) swap. Profit columns are zero for
// buys; for sells they compare realised quote-token proceeds against the
// DEX mid price at execution time.
type Trade struct {
	ID          string
	Type        TradeType
	Amount      float64 // base-token quantity
	EntryPrice  float64
	ExitPrice   float64
	ProfitPct   float64
	ProfitUSD   float64
	ExpectedOut float64 // slippage-floored output the swap was submitted with
	TxHash      string
	Timestamp   time.Time
}

// ErrorEntry is a persisted operational error, kept for diagnostics and
// surfaced over the API.
type ErrorEntry struct {
	ID        string
	Context   string
	Message   string
	Timestamp time.Time
}

// EquityPoint is one sample of the cumulative realised-profit curve.
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// TradeStats summarises realised performance.
type TradeStats struct {
	TotalTrades    int64
	TotalProfitUSD float64
	DailyProfitUSD float64
	WinRate        float64
	AvgProfitUSD   float64
}
