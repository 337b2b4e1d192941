package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// BalanceReader snapshots the trading wallet's native, base, and quote
// balances in human units.
type BalanceReader struct {
	rpc   RPC
	owner common.Address
	base  *ERC20
	quote *ERC20
}

func NewBalanceReader(rpc RPC, owner common.Address, base, quote *ERC20) *BalanceReader {
	return &BalanceReader{rpc: rpc, owner: owner, base: base, quote: quote}
}

func (r *BalanceReader) Balances(ctx context.Context) (domain.WalletBalances, error) {
	native, err := r.rpc.BalanceAt(ctx, r.owner, nil)
	if err != nil {
		return domain.WalletBalances{}, fmt.Errorf("chain: native balance: %w", err)
	}
	base, err := r.base.BalanceOf(ctx, r.owner)
	if err != nil {
		return domain.WalletBalances{}, fmt.Errorf("chain: base balance: %w", err)
	}
	quote, err := r.quote.BalanceOf(ctx, r.owner)
	if err != nil {
		return domain.WalletBalances{}, fmt.Errorf("chain: quote balance: %w", err)
	}
	return domain.WalletBalances{
		Native: FromWei(native, 18),
		Base:   FromWei(base, r.base.Decimals()),
		Quote:  FromWei(quote, r.quote.Decimals()),
	}, nil
}
