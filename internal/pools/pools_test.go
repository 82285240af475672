package pools

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func addr(h string) common.Address { return common.HexToAddress(h) }

func TestBestAmountOutPicksLargestAcrossPools(t *testing.T) {
	t.Parallel()

	from := addr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := addr("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	small := subgraphPool{
		ID:     "pool-small",
		Source: "lp-a",
		Fee:    "30",
	}
	small.Token0.ID = from.Hex()
	small.Token1.ID = to.Hex()
	small.Reserve0 = "1000000000000000000000"
	small.Reserve1 = "1000000000000000000000"

	large := subgraphPool{
		ID:     "pool-large",
		Source: "lp-b",
		Fee:    "30",
	}
	large.Token0.ID = from.Hex()
	large.Token1.ID = to.Hex()
	large.Reserve0 = "10000000000000000000000"
	large.Reserve1 = "10000000000000000000000"

	amountIn := big.NewInt(1e15)
	quote, found := bestAmountOut([]subgraphPool{small, large}, from, to, amountIn, nil)
	if !found {
		t.Fatal("expected a route to be found")
	}
	if quote.RouteVisual == "" {
		t.Fatal("expected a populated route visual")
	}
	// The deeper pool must win: same swap on more liquidity yields more out.
	if quote.AmountOut.Cmp(big.NewInt(0)) <= 0 {
		t.Fatal("expected positive amount out")
	}
	if !strings.HasSuffix(quote.RouteVisual, "pool-large") {
		t.Fatalf("expected the deeper pool to win, got route %q", quote.RouteVisual)
	}
}

func TestBestAmountOutRespectsAllowList(t *testing.T) {
	t.Parallel()

	from := addr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := addr("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	p := subgraphPool{ID: "pool-1", Source: "lp-untrusted", Fee: "30"}
	p.Token0.ID = from.Hex()
	p.Token1.ID = to.Hex()
	p.Reserve0 = "1000000000000000000000"
	p.Reserve1 = "1000000000000000000000"

	_, found := bestAmountOut([]subgraphPool{p}, from, to, big.NewInt(1e15), map[string]bool{"lp-trusted": true})
	if found {
		t.Fatal("expected pool from non-allow-listed source to be excluded")
	}
}

func TestBestAmountOutSkipsZeroReserves(t *testing.T) {
	t.Parallel()

	from := addr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := addr("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	p := subgraphPool{ID: "pool-empty", Source: "lp-a", Fee: "30"}
	p.Token0.ID = from.Hex()
	p.Token1.ID = to.Hex()
	p.Reserve0 = "0"
	p.Reserve1 = "0"

	_, found := bestAmountOut([]subgraphPool{p}, from, to, big.NewInt(1e15), nil)
	if found {
		t.Fatal("expected zero-reserve pool to be skipped")
	}
}

func TestConstantProductOutMonotonicInReserves(t *testing.T) {
	t.Parallel()

	amountIn := big.NewInt(1e15)
	e21 := new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)
	e22 := new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil)
	small := constantProductOut(e21, e21, amountIn, 30)
	large := constantProductOut(e22, e22, amountIn, 30)

	if large.Cmp(small) <= 0 {
		t.Fatalf("expected deeper pool to yield more output: small=%s large=%s", small, large)
	}
}

func TestParseFeeBpsDefaultsWhenMissing(t *testing.T) {
	t.Parallel()
	if got := parseFeeBps(""); got != 30 {
		t.Fatalf("expected default fee 30, got %d", got)
	}
	if got := parseFeeBps("5"); got != 5 {
		t.Fatalf("expected parsed fee 5, got %d", got)
	}
}
