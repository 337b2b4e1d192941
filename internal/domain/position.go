package domain

import "time"

// Position is an open long in the base token. QtyLeft shrinks as the
// take-profit ladder sells rungs; TP1Hit/TP2Hit latch one-way so a rung
// never fires twice even if price dips back under its threshold.
type Position struct {
	ID         string
	Side       string // always "long" for spot
	EntryPrice float64
	QtyTotal   float64
	QtyLeft    float64
	TP1Hit     bool
	TP2Hit     bool
	CreatedAt  time.Time
}

// Remaining reports whether the position still has quantity to exit.
func (p Position) Remaining() bool { return p.QtyLeft > 0 }
