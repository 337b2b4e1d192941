// Package quote resolves swap routes and expected outputs across the
// configured DEX venues.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexbot/internal/chain"
	"github.com/alanyoungcy/dexbot/internal/domain"
)

// RouterClient is the per-venue router surface the resolver needs.
// *chain.Router satisfies it.
type RouterClient interface {
	Address() common.Address
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	SwapCalldata(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error)
}

// Route is a resolved swap: the venue and path it goes through and the
// quoted output for the requested input.
type Route struct {
	Venue  string
	Router common.Address
	Path   []common.Address
	Out    *big.Int
}

// Tokens identifies the traded pair and the intermediate hop.
type Tokens struct {
	Base          common.Address
	Quote         common.Address
	WrappedNative common.Address
	BaseDecimals  int32
	QuoteDecimals int32
}

// Resolver quotes the configured venues. Paths are tried direct first, then
// through the wrapped native token; the first path with liquidity wins.
type Resolver struct {
	tokens  Tokens
	order   []string
	routers map[string]RouterClient
	logger  *slog.Logger
}

func NewResolver(tokens Tokens, order []string, routers map[string]RouterClient, logger *slog.Logger) *Resolver {
	return &Resolver{
		tokens:  tokens,
		order:   order,
		routers: routers,
		logger:  logger.With(slog.String("component", "quote")),
	}
}

// VenueOrder returns the configured venue preference order.
func (r *Resolver) VenueOrder() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// paths returns candidate swap paths for the direction, direct route first.
func (r *Resolver) paths(action domain.SignalAction) [][]common.Address {
	t := r.tokens
	if action == domain.SignalBuy {
		return [][]common.Address{
			{t.Quote, t.Base},
			{t.Quote, t.WrappedNative, t.Base},
		}
	}
	return [][]common.Address{
		{t.Base, t.Quote},
		{t.Base, t.WrappedNative, t.Quote},
	}
}

// Resolve quotes amountIn on one venue, trying each candidate path in
// order. It returns chain.ErrNoLiquidity (wrapped) only when every path was
// dry, so callers can tell a venue with no depth from an RPC failure.
func (r *Resolver) Resolve(ctx context.Context, venue string, action domain.SignalAction, amountIn *big.Int) (*Route, error) {
	router, ok := r.routers[venue]
	if !ok {
		return nil, fmt.Errorf("quote: unknown venue %q: %w", venue, domain.ErrRouteUnavailable)
	}

	var lastErr error
	for _, path := range r.paths(action) {
		amounts, err := router.AmountsOut(ctx, amountIn, path)
		if err != nil {
			if errors.Is(err, chain.ErrNoLiquidity) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("quote: %s on %s: %w", action, venue, err)
		}
		return &Route{
			Venue:  venue,
			Router: router.Address(),
			Path:   path,
			Out:    amounts[len(amounts)-1],
		}, nil
	}
	return nil, fmt.Errorf("quote: %s on %s: %w: %w", action, venue, domain.ErrInsufficientLiquidity, lastErr)
}

// SwapCalldata packs the swap for a previously resolved route.
func (r *Resolver) SwapCalldata(route *Route, amountIn, minOut *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	router, ok := r.routers[route.Venue]
	if !ok {
		return nil, fmt.Errorf("quote: unknown venue %q: %w", route.Venue, domain.ErrRouteUnavailable)
	}
	return router.SwapCalldata(amountIn, minOut, route.Path, to, deadline)
}
