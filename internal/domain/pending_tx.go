package domain

import "time"

// PendingTxStatus is the lifecycle state of a submitted transaction.
type PendingTxStatus string

const (
	TxPending PendingTxStatus = "pending"
	TxMined   PendingTxStatus = "mined"
	TxStuck   PendingTxStatus = "stuck"
)

// PendingTx tracks a submitted transaction until it mines or exhausts its
// fee-bump budget. A row is identified by nonce: replace-by-fee rebroadcasts
// change the hash and gas price but never the nonce.
type PendingTx struct {
	TxHash   string
	Nonce    uint64
	GasPrice uint64 // wei
	SentAt   time.Time
	Bumps    int
	Status   PendingTxStatus
}

// WalletBalances is a point-in-time snapshot of the trading wallet.
type WalletBalances struct {
	Native float64 `json:"native"`
	Base   float64 `json:"base"`
	Quote  float64 `json:"quote"`
}

// BotState is the orchestrator's lifecycle state.
type BotState string

const (
	BotStopped BotState = "stopped"
	BotRunning BotState = "running"
	BotHalted  BotState = "halted"
)

// BotStatus is the orchestrator snapshot served over the API.
type BotStatus struct {
	State        BotState  `json:"state"`
	HaltReason   string    `json:"halt_reason,omitempty"`
	LastSignalAt time.Time `json:"last_signal_at"`
	StartedAt    time.Time `json:"started_at"`
	TickCount    int64     `json:"tick_count"`
}
