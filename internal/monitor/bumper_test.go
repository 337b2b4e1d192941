package monitor

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/chain"
	"github.com/alanyoungcy/dexbot/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeNode struct {
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
	sent     []*types.Transaction
	sendErr  error
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		receipts: make(map[common.Hash]*types.Receipt),
		txs:      make(map[common.Hash]*types.Transaction),
	}
}

func (n *fakeNode) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := n.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (n *fakeNode) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if tx, ok := n.txs[hash]; ok {
		return tx, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (n *fakeNode) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, tx)
	return nil
}

type memPending struct {
	rows map[uint64]domain.PendingTx
}

func newMemPending() *memPending {
	return &memPending{rows: make(map[uint64]domain.PendingTx)}
}

func (m *memPending) Insert(_ context.Context, tx domain.PendingTx) error {
	m.rows[tx.Nonce] = tx
	return nil
}

func (m *memPending) ListPending(_ context.Context) ([]domain.PendingTx, error) {
	var out []domain.PendingTx
	for _, row := range m.rows {
		if row.Status == domain.TxPending {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memPending) MarkMined(_ context.Context, nonce uint64) error {
	return m.setStatus(nonce, domain.TxMined)
}

func (m *memPending) MarkStuck(_ context.Context, nonce uint64) error {
	return m.setStatus(nonce, domain.TxStuck)
}

func (m *memPending) setStatus(nonce uint64, status domain.PendingTxStatus) error {
	row, ok := m.rows[nonce]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status = status
	m.rows[nonce] = row
	return nil
}

func (m *memPending) RecordBump(_ context.Context, nonce uint64, newHash string, gasPrice uint64, bumps int) error {
	row, ok := m.rows[nonce]
	if !ok {
		return domain.ErrNotFound
	}
	row.TxHash = newHash
	row.GasPrice = gasPrice
	row.Bumps = bumps
	row.SentAt = time.Now()
	m.rows[nonce] = row
	return nil
}

func (m *memPending) CountByStatus(_ context.Context) (map[domain.PendingTxStatus]int64, error) {
	counts := make(map[domain.PendingTxStatus]int64)
	for _, row := range m.rows {
		counts[row.Status]++
	}
	return counts, nil
}

type fakeAlerts struct {
	events []string
}

func (a *fakeAlerts) Notify(_ context.Context, event, _, _ string) error {
	a.events = append(a.events, event)
	return nil
}

type bumperFixture struct {
	bumper  *Bumper
	node    *fakeNode
	pending *memPending
	alerts  *fakeAlerts
	wallet  *chain.Wallet
}

func newBumperFixture(t *testing.T) *bumperFixture {
	t.Helper()

	wallet, err := chain.NewWallet(testKey, 56)
	require.NoError(t, err)

	node := newFakeNode()
	pending := newMemPending()
	alerts := &fakeAlerts{}

	cfg := BumperConfig{
		Interval:   time.Second,
		Timeout:    120 * time.Second,
		BumpFactor: 1.2,
		MaxBumps:   3,
	}
	logger := slog.New(slog.DiscardHandler)

	return &bumperFixture{
		bumper:  NewBumper(node, wallet, pending, alerts, cfg, logger),
		node:    node,
		pending: pending,
		alerts:  alerts,
		wallet:  wallet,
	}
}

// seed signs a swap-shaped tx at the given gas price, registers it with the
// fake node, and tracks it in the pending store.
func (f *bumperFixture) seed(t *testing.T, nonce uint64, gasPriceGwei int64, age time.Duration, bumps int) *types.Transaction {
	t.Helper()

	price := new(big.Int).Mul(big.NewInt(gasPriceGwei), big.NewInt(chain.Gwei))
	tx, err := f.wallet.SignLegacy(nonce, common.HexToAddress("0x10"), big.NewInt(0), price, 200_000, []byte{0x01})
	require.NoError(t, err)

	f.node.txs[tx.Hash()] = tx
	f.pending.rows[nonce] = domain.PendingTx{
		TxHash:   tx.Hash().Hex(),
		Nonce:    nonce,
		GasPrice: price.Uint64(),
		SentAt:   time.Now().Add(-age),
		Bumps:    bumps,
		Status:   domain.TxPending,
	}
	return tx
}

func TestBumperMarksMined(t *testing.T) {
	f := newBumperFixture(t)
	tx := f.seed(t, 7, 3, time.Minute, 0)
	f.node.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful}

	require.NoError(t, f.bumper.Tick(context.Background()))

	assert.Equal(t, domain.TxMined, f.pending.rows[7].Status)
	assert.Empty(t, f.node.sent)
}

func TestBumperMarksRevertedAsMined(t *testing.T) {
	f := newBumperFixture(t)
	tx := f.seed(t, 7, 3, time.Minute, 0)
	f.node.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusFailed}

	require.NoError(t, f.bumper.Tick(context.Background()))

	// A revert still consumes the nonce; the row must leave the pending set.
	assert.Equal(t, domain.TxMined, f.pending.rows[7].Status)
	assert.Empty(t, f.node.sent)
}

func TestBumperLeavesFreshTxAlone(t *testing.T) {
	f := newBumperFixture(t)
	f.seed(t, 7, 3, 30*time.Second, 0)

	require.NoError(t, f.bumper.Tick(context.Background()))

	assert.Empty(t, f.node.sent)
	assert.Equal(t, domain.TxPending, f.pending.rows[7].Status)
	assert.Equal(t, 0, f.pending.rows[7].Bumps)
}

func TestBumperRebroadcastsWithHigherPriceSameNonce(t *testing.T) {
	f := newBumperFixture(t)
	original := f.seed(t, 7, 5, 3*time.Minute, 0)

	require.NoError(t, f.bumper.Tick(context.Background()))

	require.Len(t, f.node.sent, 1)
	replacement := f.node.sent[0]
	assert.Equal(t, uint64(7), replacement.Nonce())
	assert.Equal(t, big.NewInt(6*chain.Gwei), replacement.GasPrice())
	assert.Equal(t, original.To(), replacement.To())
	assert.Equal(t, original.Data(), replacement.Data())

	row := f.pending.rows[7]
	assert.Equal(t, replacement.Hash().Hex(), row.TxHash)
	assert.Equal(t, uint64(6*chain.Gwei), row.GasPrice)
	assert.Equal(t, 1, row.Bumps)
	assert.Equal(t, domain.TxPending, row.Status)
	assert.WithinDuration(t, time.Now(), row.SentAt, time.Second)
}

func TestBumperStuckAfterBudgetExhausted(t *testing.T) {
	f := newBumperFixture(t)
	f.seed(t, 7, 5, 10*time.Minute, 3)

	require.NoError(t, f.bumper.Tick(context.Background()))

	assert.Empty(t, f.node.sent)
	assert.Equal(t, domain.TxStuck, f.pending.rows[7].Status)
	assert.Equal(t, []string{"tx_stuck"}, f.alerts.events)
}

func TestBumperRebroadcastFailureKeepsRow(t *testing.T) {
	f := newBumperFixture(t)
	f.seed(t, 7, 5, 3*time.Minute, 0)
	f.node.sendErr = errors.New("nonce too low")

	require.NoError(t, f.bumper.Tick(context.Background()))

	// The store row is untouched so the next tick retries the bump.
	assert.Equal(t, 0, f.pending.rows[7].Bumps)
	assert.Equal(t, domain.TxPending, f.pending.rows[7].Status)
}
