// Package pools implements chain.PoolFetcher by querying configured
// subgraph endpoints for constant-product pool reserves and picking the
// best amount-out across the liquidity-provider allow-list. The resty
// client setup (base URL, timeout, retry) mirrors the teacher's
// market/scanner.go fetchMarkets, adapted from a REST/JSON API to a
// GraphQL POST body since subgraphs speak GraphQL.
package pools

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"

	"polymarket-mm/pkg/types"
)

// poolsQuery asks a subgraph for every pool containing both tokens,
// filtered to the configured LP allow-list by the caller after the fetch.
const poolsQuery = `{"query":"{ pools(where: { token0_in: [%q, %q], token1_in: [%q, %q] }) { id reserve0 reserve1 token0 { id } token1 { id } fee source } }"}`

type subgraphPool struct {
	ID       string `json:"id"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
	Token0   struct {
		ID string `json:"id"`
	} `json:"token0"`
	Token1 struct {
		ID string `json:"id"`
	} `json:"token1"`
	Fee    string `json:"fee"`
	Source string `json:"source"`
}

type subgraphResponse struct {
	Data struct {
		Pools []subgraphPool `json:"pools"`
	} `json:"data"`
}

// Fetcher implements chain.PoolFetcher against a set of subgraph endpoints.
type Fetcher struct {
	http      *resty.Client
	subgraphs []string
}

// New builds a Fetcher. subgraphs are queried in order per FindRoute call;
// the first one that answers without error and yields a usable pool supplies
// the quote, and the rest are skipped for that call. A subgraph that errors
// or has no usable pool passes the call on to the next one.
func New(subgraphs []string, timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		http:      resty.New().SetTimeout(timeout).SetRetryCount(2).SetRetryWaitTime(500 * time.Millisecond),
		subgraphs: subgraphs,
	}
}

// FindRoute queries the configured subgraphs for a pool between fromToken
// and toToken restricted to lps, and returns the single best amount-out via
// the constant-product formula x*y=k with a 0.3% fee assumption when the
// subgraph doesn't report its own fee tier.
func (f *Fetcher) FindRoute(ctx context.Context, fromToken, toToken common.Address, amountIn *big.Int, lps []string) (types.RouteQuote, error) {
	if len(f.subgraphs) == 0 {
		return types.RouteQuote{Found: false}, nil
	}

	allow := make(map[string]bool, len(lps))
	for _, lp := range lps {
		allow[lp] = true
	}

	var lastErr error
	for _, endpoint := range f.subgraphs {
		poolsResp, err := f.queryPools(ctx, endpoint, fromToken, toToken)
		if err != nil {
			lastErr = err
			continue
		}

		best, found := bestAmountOut(poolsResp.Data.Pools, fromToken, toToken, amountIn, allow)
		if !found {
			continue
		}
		return best, nil
	}

	if lastErr != nil {
		return types.RouteQuote{}, fmt.Errorf("find route %s->%s: %w", fromToken.Hex(), toToken.Hex(), lastErr)
	}
	return types.RouteQuote{Found: false}, nil
}

func (f *Fetcher) queryPools(ctx context.Context, endpoint string, fromToken, toToken common.Address) (subgraphResponse, error) {
	body := fmt.Sprintf(poolsQuery,
		fromToken.Hex(), toToken.Hex(),
		fromToken.Hex(), toToken.Hex(),
	)

	var parsed subgraphResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&parsed).
		Post(endpoint)
	if err != nil {
		return subgraphResponse{}, fmt.Errorf("query subgraph %s: %w", endpoint, err)
	}
	if resp.IsError() {
		return subgraphResponse{}, fmt.Errorf("subgraph %s returned %s", endpoint, resp.Status())
	}
	return parsed, nil
}

// bestAmountOut picks the pool (restricted to allow, if non-empty) yielding
// the largest amountOut for amountIn, applying each pool's own fee tier when
// reported, otherwise a 30bps default.
func bestAmountOut(pools []subgraphPool, fromToken, toToken common.Address, amountIn *big.Int, allow map[string]bool) (types.RouteQuote, bool) {
	var best types.RouteQuote
	found := false

	for _, p := range pools {
		if len(allow) > 0 && !allow[p.Source] {
			continue
		}

		reserveIn, ok := parseReserve(p, fromToken)
		if !ok {
			continue
		}
		reserveOut, ok := parseReserve(p, toToken)
		if !ok {
			continue
		}
		if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
			continue
		}

		feeBps := parseFeeBps(p.Fee)
		amountOut := constantProductOut(reserveIn, reserveOut, amountIn, feeBps)
		if amountOut.Sign() <= 0 {
			continue
		}

		if !found || amountOut.Cmp(best.AmountOut) > 0 {
			best = types.RouteQuote{
				Found:       true,
				AmountOut:   amountOut,
				RouteVisual: fmt.Sprintf("%s->%s via %s", fromToken.Hex(), toToken.Hex(), p.ID),
				RouteCode:   common.FromHex(p.ID),
			}
			found = true
		}
	}

	return best, found
}

func parseReserve(p subgraphPool, token common.Address) (*big.Int, bool) {
	switch common.HexToAddress(p.Token0.ID) {
	case token:
		v, ok := new(big.Int).SetString(p.Reserve0, 10)
		return v, ok
	}
	switch common.HexToAddress(p.Token1.ID) {
	case token:
		v, ok := new(big.Int).SetString(p.Reserve1, 10)
		return v, ok
	}
	return nil, false
}

func parseFeeBps(fee string) int64 {
	if v, ok := new(big.Int).SetString(fee, 10); ok && v.Sign() > 0 {
		return v.Int64()
	}
	return 30 // 0.3% default
}

// constantProductOut applies the standard x*y=k swap formula with a fee
// deducted from the input leg: amountOut = (amountIn*(10000-feeBps)*reserveOut) / (reserveIn*10000 + amountIn*(10000-feeBps)).
func constantProductOut(reserveIn, reserveOut, amountIn *big.Int, feeBps int64) *big.Int {
	feeMultiplier := big.NewInt(10000 - feeBps)
	amountInWithFee := new(big.Int).Mul(amountIn, feeMultiplier)

	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(10000)), amountInWithFee)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Div(numerator, denominator)
}
