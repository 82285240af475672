package bundler

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/pkg/types"
)

type fakeBalances struct {
	byVault map[common.Address]*big.Int
}

func (f fakeBalances) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if b, ok := f.byVault[owner]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

type fakeRoutes struct{}

func (fakeRoutes) BestRoute(ctx context.Context, from, to common.Address, amountIn *big.Int) (types.RouteQuote, error) {
	return types.RouteQuote{Found: true, AmountOut: new(big.Int).Div(amountIn, big.NewInt(2))}, nil
}

func makeOrder(id byte, orderbook common.Address, sell, buy common.Address) *types.Order {
	return &types.Order{
		ID:               common.Hash{id},
		Owner:            common.HexToAddress("0xaa"),
		OrderbookAddress: orderbook,
		Inputs:           []types.IO{{Token: sell, Decimals: 18}},
		Outputs:          []types.IO{{Token: buy, Decimals: 18}},
		Evaluable:        []byte{0x01},
	}
}

func TestBundleGroupsByTripleWhenBundleOn(t *testing.T) {
	t.Parallel()
	ob := common.HexToAddress("0x10")
	sell := common.HexToAddress("0x11")
	buy := common.HexToAddress("0x12")

	raws := []RawOrder{
		{Order: makeOrder(1, ob, sell, buy)},
		{Order: makeOrder(2, ob, sell, buy)},
	}
	balances := fakeBalances{byVault: map[common.Address]*big.Int{ob: big.NewInt(1000)}}

	bps, err := Bundle(context.Background(), Config{Bundle: true}, raws, balances, fakeRoutes{})
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if len(bps) != 1 {
		t.Fatalf("expected 1 bundled BP, got %d", len(bps))
	}
	if len(bps[0].TakeOrders) != 2 {
		t.Errorf("expected both TOs merged into one BP, got %d", len(bps[0].TakeOrders))
	}
}

func TestBundleOnePerTOWhenBundleOff(t *testing.T) {
	t.Parallel()
	ob := common.HexToAddress("0x10")
	sell := common.HexToAddress("0x11")
	buy := common.HexToAddress("0x12")

	raws := []RawOrder{
		{Order: makeOrder(1, ob, sell, buy)},
		{Order: makeOrder(2, ob, sell, buy)},
	}
	balances := fakeBalances{byVault: map[common.Address]*big.Int{ob: big.NewInt(1000)}}

	bps, err := Bundle(context.Background(), Config{Bundle: false}, raws, balances, fakeRoutes{})
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if len(bps) != 2 {
		t.Fatalf("expected 2 BPs (one per TO), got %d", len(bps))
	}
	for _, bp := range bps {
		if len(bp.TakeOrders) != 1 {
			t.Errorf("expected exactly one TO per BP in bundle-off mode, got %d", len(bp.TakeOrders))
		}
	}
}

func TestBundleDiscardsZeroVaultBalance(t *testing.T) {
	t.Parallel()
	ob := common.HexToAddress("0x20")
	sell := common.HexToAddress("0x21")
	buy := common.HexToAddress("0x22")

	raws := []RawOrder{{Order: makeOrder(1, ob, sell, buy)}}
	balances := fakeBalances{byVault: map[common.Address]*big.Int{}} // no entry => zero balance

	bps, err := Bundle(context.Background(), Config{Bundle: true}, raws, balances, fakeRoutes{})
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if len(bps) != 0 {
		t.Fatalf("expected zero-balance order to be discarded, got %d BPs", len(bps))
	}
}

func TestRatioFromQuoteIsOutputPerInput(t *testing.T) {
	t.Parallel()
	sell := big.NewInt(1000)
	buy := big.NewInt(500)
	got := ratioFromQuote(sell, buy, 18, 18)
	want := new(big.Int).Div(new(big.Int).Mul(buy, types.Scale18), sell)
	if got.Cmp(want) != 0 {
		t.Errorf("ratioFromQuote(1000, 500) = %s, want %s (0.5e18, output per input)", got, want)
	}
}

func TestRatioFromQuoteZeroSellIsZero(t *testing.T) {
	t.Parallel()
	if got := ratioFromQuote(big.NewInt(0), big.NewInt(100), 18, 18); got.Sign() != 0 {
		t.Errorf("expected zero ratio for zero sell amount, got %s", got)
	}
}

func TestBundleSeedsRatioOutputPerInput(t *testing.T) {
	t.Parallel()
	ob := common.HexToAddress("0x40")
	sell := common.HexToAddress("0x41")
	buy := common.HexToAddress("0x42")

	raws := []RawOrder{{Order: makeOrder(1, ob, sell, buy)}}
	balances := fakeBalances{byVault: map[common.Address]*big.Int{ob: big.NewInt(1000)}}

	bps, err := Bundle(context.Background(), Config{Bundle: true}, raws, balances, fakeRoutes{})
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if len(bps) != 1 || len(bps[0].TakeOrders) != 1 {
		t.Fatalf("unexpected bundle shape: %+v", bps)
	}
	// fakeRoutes quotes amountOut = amountIn/2, so ratio (output/input) is 0.5e18.
	want := new(big.Int).Div(types.Scale18, big.NewInt(2))
	if got := bps[0].TakeOrders[0].Quote.Ratio; got.Cmp(want) != 0 {
		t.Errorf("seeded ratio = %s, want %s", got, want)
	}
}

func TestBundleGuaranteesNonEmptyTakeOrders(t *testing.T) {
	t.Parallel()
	ob := common.HexToAddress("0x30")
	sell := common.HexToAddress("0x31")
	buy := common.HexToAddress("0x32")

	raws := []RawOrder{{Order: makeOrder(1, ob, sell, buy)}}
	balances := fakeBalances{byVault: map[common.Address]*big.Int{ob: big.NewInt(500)}}

	bps, err := Bundle(context.Background(), Config{Bundle: true}, raws, balances, fakeRoutes{})
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	for _, bp := range bps {
		if len(bp.TakeOrders) == 0 {
			t.Error("every emitted BP must have at least one TO")
		}
	}
}
