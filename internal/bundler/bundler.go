// Package bundler implements the Order Bundler (C8): it groups raw
// take-order records into per-pair BPs keyed by (orderbook, sellToken,
// buyToken), attaches current vault balances and quote ratios, and
// optionally shuffles the result to reduce adversarial ordering effects.
// The filter → rank/group → cap shape mirrors the teacher's
// internal/market/scanner.go filterMarkets/rankMarkets pipeline, adapted
// from a single flat market list to a group-by-triple bundle.
package bundler

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"polymarket-mm/pkg/types"
)

// RawOrder is the ingested, unbundled shape: one order plus every
// input/output leg it exposes. Order ingestion itself (indexer/file
// sources) is an external collaborator per SPEC_FULL.md §1; the bundler
// only consumes the result.
type RawOrder struct {
	Order *types.Order
}

// BalanceReader is C8's on-chain dependency: vault balance lookups. The
// chain.Client satisfies this directly.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// RouteReader is C8's quote dependency, used to seed quote.ratio/maxOutput
// at bundle time so the first dryrun hop has a starting price.
type RouteReader interface {
	BestRoute(ctx context.Context, fromToken, toToken common.Address, amountIn *big.Int) (types.RouteQuote, error)
}

type key struct {
	orderbook common.Address
	sell      common.Address
	buy       common.Address
}

// Config tunes bundling behaviour.
type Config struct {
	Bundle  bool // bundle on: one BP per triple; bundle off: one BP per TO
	Shuffle bool
	// Concurrency bounds the fan-out width of the balance/quote reads
	// below, standing in for the single-multicall round spec.md §4.1
	// describes: every TO's vault balance and seed quote is fetched
	// concurrently and awaited together, one RPC round per bundle.
	Concurrency int
}

// Bundle groups raw orders into BPs per spec.md §4.1. It discards any TO
// whose vault balance is zero, and only emits a BP once it has at least
// one surviving TO (the §4.1 guarantee). Bundle order is stable by first
// encounter of each (orderbook, sellToken, buyToken) triple unless
// Config.Shuffle reorders the final slice.
func Bundle(ctx context.Context, cfg Config, orders []RawOrder, balances BalanceReader, routes RouteReader) ([]types.BP, error) {
	candidates, err := expandAndQuote(ctx, cfg, orders, balances, routes)
	if err != nil {
		return nil, err
	}

	var bps []types.BP
	if cfg.Bundle {
		bps = groupByTriple(candidates)
	} else {
		bps = onePerTO(candidates)
	}

	if cfg.Shuffle {
		rand.Shuffle(len(bps), func(i, j int) { bps[i], bps[j] = bps[j], bps[i] })
	}

	return bps, nil
}

// candidate is a TO still carrying its grouping key, post balance/quote fetch.
type candidate struct {
	key          key
	to           types.TO
	sellDecimals uint8
	buyDecimals  uint8
	vaultBalance *big.Int
}

// expandAndQuote extracts every TO leg from every order, fetches vault
// balance and a seed route quote concurrently (bounded fan-out in place of
// a literal multicall), and discards zero-balance legs.
func expandAndQuote(ctx context.Context, cfg Config, orders []RawOrder, balances BalanceReader, routes RouteReader) ([]candidate, error) {
	type slot struct {
		k      key
		to     types.TO
		sellIO types.IO
		buyIO  types.IO
	}

	var slots []slot
	for _, raw := range orders {
		o := raw.Order
		for ii := range o.Inputs {
			for oi := range o.Outputs {
				sellIO := o.Inputs[ii]
				buyIO := o.Outputs[oi]
				to := types.TO{Order: o, InputIOIdx: ii, OutputIOIdx: oi}
				slots = append(slots, slot{
					k:      key{orderbook: o.OrderbookAddress, sell: sellIO.Token, buy: buyIO.Token},
					to:     to,
					sellIO: sellIO,
					buyIO:  buyIO,
				})
			}
		}
	}

	results := make([]candidate, len(slots))
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for i, s := range slots {
		i, s := i, s
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			bal, err := balances.BalanceOf(gctx, s.sellIO.Token, s.k.orderbook)
			if err != nil {
				return fmt.Errorf("balanceOf vault for order %s: %w", s.to.Order.ID.Hex(), err)
			}

			to := s.to
			if bal.Sign() > 0 {
				quote, err := routes.BestRoute(gctx, s.sellIO.Token, s.buyIO.Token, bal)
				if err != nil {
					return fmt.Errorf("seed route for order %s: %w", s.to.Order.ID.Hex(), err)
				}
				if quote.Found {
					to.Quote = types.Quote{
						MaxOutput: types.ToFixed18(bal, s.sellIO.Decimals),
						Ratio:     ratioFromQuote(bal, quote.AmountOut, s.sellIO.Decimals, s.buyIO.Decimals),
					}
				}
			}

			results[i] = candidate{
				key:          s.k,
				to:           to,
				sellDecimals: s.sellIO.Decimals,
				buyDecimals:  s.buyIO.Decimals,
				vaultBalance: bal,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	filtered := results[:0]
	for _, r := range results {
		if r.vaultBalance != nil && r.vaultBalance.Sign() > 0 {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ratioFromQuote expresses buyAmount/sellAmount as an 18-decimal fixed
// ratio: output per unit of input, the same units as dryrun's marketPrice
// (amountOut18*1e18/maxInput18), so the two are directly comparable at the
// marketPrice < leadRatio gate.
func ratioFromQuote(sellAmount, buyAmount *big.Int, sellDecimals, buyDecimals uint8) *big.Int {
	if sellAmount == nil || sellAmount.Sign() == 0 {
		return big.NewInt(0)
	}
	sell18 := types.ToFixed18(sellAmount, sellDecimals)
	buy18 := types.ToFixed18(buyAmount, buyDecimals)
	num := new(big.Int).Mul(buy18, types.Scale18)
	return new(big.Int).Quo(num, sell18)
}

// groupByTriple implements bundle-on: one BP per (orderbook, sell, buy)
// triple, stable by first encounter.
func groupByTriple(candidates []candidate) []types.BP {
	order := make([]key, 0)
	byKey := make(map[key]*types.BP)

	for _, c := range candidates {
		bp, ok := byKey[c.key]
		if !ok {
			nb := types.BP{
				Orderbook:    c.key.orderbook,
				SellToken:    c.key.sell,
				BuyToken:     c.key.buy,
				SellDecimals: c.sellDecimals,
				BuyDecimals:  c.buyDecimals,
			}
			byKey[c.key] = &nb
			bp = &nb
			order = append(order, c.key)
		}
		bp.TakeOrders = append(bp.TakeOrders, c.to)
	}

	out := make([]types.BP, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

// onePerTO implements bundle-off: one BP per individual TO.
func onePerTO(candidates []candidate) []types.BP {
	out := make([]types.BP, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, types.BP{
			Orderbook:    c.key.orderbook,
			SellToken:    c.key.sell,
			BuyToken:     c.key.buy,
			SellDecimals: c.sellDecimals,
			BuyDecimals:  c.buyDecimals,
			TakeOrders:   []types.TO{c.to},
		})
	}
	return out
}
