package domain

import "time"

// SignalAction is the trade direction a signal calls for.
type SignalAction string

const (
	SignalBuy  SignalAction = "buy"
	SignalSell SignalAction = "sell"
)

// Signal is one actionable output of strategy evaluation. MACDHist is nil
// when the indicator feed returned no MACD value for the tick; the
// evaluator compensates with a wider spread requirement.
type Signal struct {
	ID           string
	Action       SignalAction
	DexPrice     float64
	BinancePrice float64
	SpreadPct    float64
	RSI          float64
	EMA          float64
	MACDHist     *float64
	Venues       []string // candidate venues in preference order
	PositionPct  float64  // percent of balance to commit, set by the risk governor
	CreatedAt    time.Time
}
