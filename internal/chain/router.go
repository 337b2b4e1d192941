package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const routerABIJSON = `[
  {"constant":true,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"amountOut","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsIn","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"type":"function"}
]`

var routerABI = mustParseABI(routerABIJSON)

// Router binds a UniswapV2-style router contract.
type Router struct {
	rpc  RPC
	addr common.Address
}

func NewRouter(rpc RPC, addr common.Address) *Router {
	return &Router{rpc: rpc, addr: addr}
}

func (r *Router) Address() common.Address { return r.addr }

// AmountsOut quotes amountIn through path and returns the per-hop outputs.
// Pair-reserve reverts are normalised so callers can distinguish a dry pool
// from an RPC failure.
func (r *Router) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	return r.amounts(ctx, "getAmountsOut", amountIn, path)
}

// AmountsIn quotes the inputs needed to receive amountOut through path.
func (r *Router) AmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	return r.amounts(ctx, "getAmountsIn", amountOut, path)
}

func (r *Router) amounts(ctx context.Context, method string, amount *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := routerABI.Pack(method, amount, path)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := r.rpc.CallContract(ctx, ethereum.CallMsg{To: &r.addr, Data: data}, nil)
	if err != nil {
		if isLiquidityRevert(err) {
			return nil, fmt.Errorf("chain: %s on %s: %w", method, r.addr.Hex(), ErrNoLiquidity)
		}
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, r.addr.Hex(), err)
	}
	vals, err := routerABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s returned %T, want []*big.Int", method, vals[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("chain: %s returned %d amounts for %d-hop path", method, len(amounts), len(path))
	}
	return amounts, nil
}

// SwapCalldata packs a swapExactTokensForTokens call.
func (r *Router) SwapCalldata(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := routerABI.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("chain: pack swap: %w", err)
	}
	return data, nil
}

// ErrNoLiquidity marks a quote or swap that reverted because a pool in the
// path has no (or too little) reserve. Venue fallback keys off this error.
var ErrNoLiquidity = fmt.Errorf("no liquidity for path")

var liquidityRevertMarkers = []string{
	"INSUFFICIENT_LIQUIDITY",
	"INSUFFICIENT_OUTPUT_AMOUNT",
	"INSUFFICIENT_INPUT_AMOUNT",
	"ds-math-sub-underflow",
}

func isLiquidityRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range liquidityRevertMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	// Pair lookup on a route with no deployed pool reverts with empty
	// return data; eth_call surfaces that as a bare execution revert.
	return strings.Contains(msg, "execution reverted")
}
