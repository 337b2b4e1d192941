// Package chain wraps the go-ethereum client with the narrow RPC surface the
// bot uses and provides contract call helpers for the traded pair.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPC is the subset of the Ethereum JSON-RPC surface the bot depends on.
// *ethclient.Client satisfies it.
type RPC interface {
	ChainID(ctx context.Context) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

const dialTimeout = 15 * time.Second

// Dial connects to the node at rpcURL and verifies the reported chain ID
// matches wantChainID. Trading against the wrong chain with a reused key is
// unrecoverable, so this fails loudly at startup.
func Dial(ctx context.Context, rpcURL string, wantChainID int64) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if id.Int64() != wantChainID {
		client.Close()
		return nil, fmt.Errorf("chain: node reports chain id %d, config expects %d", id.Int64(), wantChainID)
	}
	return client, nil
}
