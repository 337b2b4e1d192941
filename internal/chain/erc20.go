package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}

// MaxApproval is the unlimited ERC-20 allowance (2^256 - 1). Approving once
// for the maximum avoids a second approval transaction on every trade.
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ERC20 binds read calls and calldata packing for one token contract.
type ERC20 struct {
	rpc      RPC
	addr     common.Address
	decimals int32
}

// NewERC20 binds the token at addr. decimals is taken from config rather
// than read on every call; token decimals never change after deployment.
func NewERC20(rpc RPC, addr common.Address, decimals int32) *ERC20 {
	return &ERC20{rpc: rpc, addr: addr, decimals: decimals}
}

func (t *ERC20) Address() common.Address { return t.addr }
func (t *ERC20) Decimals() int32         { return t.decimals }

func (t *ERC20) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := t.rpc.CallContract(ctx, ethereum.CallMsg{To: &t.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, t.addr.Hex(), err)
	}
	vals, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return vals, nil
}

// BalanceOf returns the raw token balance of owner.
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	vals, err := t.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: balanceOf returned %T, want *big.Int", vals[0])
	}
	return bal, nil
}

// Allowance returns the raw allowance owner has granted spender.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	vals, err := t.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	al, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: allowance returned %T, want *big.Int", vals[0])
	}
	return al, nil
}

// ApproveCalldata packs an approve(spender, amount) call for submission.
func (t *ERC20) ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return data, nil
}
