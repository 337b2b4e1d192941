package quote

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/chain"
	"github.com/alanyoungcy/dexbot/internal/domain"
)

var testTokens = Tokens{
	Base:          common.HexToAddress("0x01"),
	Quote:         common.HexToAddress("0x02"),
	WrappedNative: common.HexToAddress("0x03"),
	BaseDecimals:  18,
	QuoteDecimals: 18,
}

type fakeRouter struct {
	addr common.Address
	// out maps path length to the final hop output; nil entry means the
	// path reverts with a liquidity error.
	outByHops map[int]*big.Int
	rpcErr    error
	calls     [][]common.Address
}

func (f *fakeRouter) Address() common.Address { return f.addr }

func (f *fakeRouter) AmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	f.calls = append(f.calls, path)
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	out, ok := f.outByHops[len(path)]
	if !ok || out == nil {
		return nil, chain.ErrNoLiquidity
	}
	amounts := make([]*big.Int, len(path))
	for i := range amounts {
		amounts[i] = amountIn
	}
	amounts[len(amounts)-1] = out
	return amounts, nil
}

func (f *fakeRouter) SwapCalldata(_, _ *big.Int, _ []common.Address, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestResolvePrefersDirectPath(t *testing.T) {
	router := &fakeRouter{
		addr:      common.HexToAddress("0x10"),
		outByHops: map[int]*big.Int{2: big.NewInt(500), 3: big.NewInt(900)},
	}
	r := NewResolver(testTokens, []string{"pancake"}, map[string]RouterClient{"pancake": router}, discard())

	route, err := r.Resolve(context.Background(), "pancake", domain.SignalBuy, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), route.Out)
	assert.Equal(t, []common.Address{testTokens.Quote, testTokens.Base}, route.Path)
}

func TestResolveFallsBackToWrappedNativeHop(t *testing.T) {
	router := &fakeRouter{
		addr:      common.HexToAddress("0x10"),
		outByHops: map[int]*big.Int{3: big.NewInt(900)},
	}
	r := NewResolver(testTokens, []string{"pancake"}, map[string]RouterClient{"pancake": router}, discard())

	route, err := r.Resolve(context.Background(), "pancake", domain.SignalSell, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(900), route.Out)
	assert.Equal(t, []common.Address{testTokens.Base, testTokens.WrappedNative, testTokens.Quote}, route.Path)
}

func TestResolveAllPathsDryReturnsLiquidityError(t *testing.T) {
	router := &fakeRouter{addr: common.HexToAddress("0x10"), outByHops: map[int]*big.Int{}}
	r := NewResolver(testTokens, []string{"pancake"}, map[string]RouterClient{"pancake": router}, discard())

	_, err := r.Resolve(context.Background(), "pancake", domain.SignalBuy, big.NewInt(1000))
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
	assert.Len(t, router.calls, 2, "both candidate paths should be tried")
}

func TestResolveRPCFailureIsNotLiquidityError(t *testing.T) {
	router := &fakeRouter{addr: common.HexToAddress("0x10"), rpcErr: errors.New("connection reset")}
	r := NewResolver(testTokens, []string{"pancake"}, map[string]RouterClient{"pancake": router}, discard())

	_, err := r.Resolve(context.Background(), "pancake", domain.SignalBuy, big.NewInt(1000))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInsufficientLiquidity)
	assert.Len(t, router.calls, 1, "an RPC failure must not be retried on the next path")
}
