package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs legacy (type-0) transactions for one account. BSC and the
// other chains this bot targets price gas with gasPrice rather than
// EIP-1559 fee caps, and replace-by-fee bumping needs a single scalar to
// multiply.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
	chainID *big.Int
}

// NewWallet parses a hex private key (with or without 0x prefix) and binds
// it to chainID for signing.
func NewWallet(hexKey string, chainID int64) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: parse private key: %w", err)
	}
	id := big.NewInt(chainID)
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(id),
		chainID: id,
	}, nil
}

func (w *Wallet) Address() common.Address { return w.address }

// SignLegacy builds and signs a legacy transaction.
func (w *Wallet) SignLegacy(nonce uint64, to common.Address, value, gasPrice *big.Int, gasLimit uint64, data []byte) (*types.Transaction, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, w.signer, w.key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign tx nonce %d: %w", nonce, err)
	}
	return signed, nil
}

// Resign rebuilds tx with a new gas price, keeping nonce, destination,
// value, gas limit, and calldata identical. This is the replace-by-fee
// primitive: same nonce, higher price.
func (w *Wallet) Resign(tx *types.Transaction, gasPrice *big.Int) (*types.Transaction, error) {
	if tx.To() == nil {
		return nil, fmt.Errorf("chain: refuse to resign contract-creation tx")
	}
	return w.SignLegacy(tx.Nonce(), *tx.To(), tx.Value(), gasPrice, tx.Gas(), tx.Data())
}
