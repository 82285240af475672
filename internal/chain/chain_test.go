package chain

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/internal/cache"
	"polymarket-mm/pkg/types"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	calls int
	quote types.RouteQuote
	err   error
}

func (f *fakeFetcher) FindRoute(ctx context.Context, fromToken, toToken common.Address, amountIn *big.Int, lps []string) (types.RouteQuote, error) {
	f.calls++
	return f.quote, f.err
}

func newTestClient(t *testing.T, fetcher PoolFetcher) *Client {
	t.Helper()
	c, err := cache.Open(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	return NewClient(nil, fetcher, c, nil, noopLogger())
}

func TestBestRouteReturnsFetcherQuote(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{quote: types.RouteQuote{Found: true, AmountOut: big.NewInt(100)}}
	cl := newTestClient(t, fetcher)

	from := common.HexToAddress("0x1")
	to := common.HexToAddress("0x2")
	amt := big.NewInt(1000)

	q, err := cl.BestRoute(context.Background(), from, to, amt)
	if err != nil {
		t.Fatalf("BestRoute: %v", err)
	}
	if !q.Found || q.AmountOut.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestBestRouteNoRoute(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{quote: types.RouteQuote{Found: false}}
	cl := newTestClient(t, fetcher)

	q, err := cl.BestRoute(context.Background(), common.Address{}, common.Address{}, big.NewInt(1))
	if err != nil {
		t.Fatalf("BestRoute: %v", err)
	}
	if q.Found {
		t.Fatal("expected Found=false")
	}
}
