package pair

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStateStringCoversAllValues(t *testing.T) {
	t.Parallel()
	states := []State{
		StateInit, StateHaveBalance, StateHaveGasAndEthPrice, StateHavePools,
		StateHaveOpportunity, StateSubmitted, StateMinedOK, StateMinedReverted, StateTimedOut,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		str := s.String()
		if str == "" {
			t.Errorf("state %d has empty String()", s)
		}
		seen[str] = true
	}
	if len(seen) != len(states) {
		t.Errorf("expected %d distinct state strings, got %d", len(states), len(seen))
	}
}

func TestClearedOrderIDsDedups(t *testing.T) {
	t.Parallel()
	order := &types.Order{ID: common.Hash{1}}
	bp := types.BP{
		TakeOrders: []types.TO{
			{Order: order, InputIOIdx: 0, OutputIOIdx: 0},
			{Order: order, InputIOIdx: 0, OutputIOIdx: 1},
		},
	}
	ids := clearedOrderIDs(bp)
	if len(ids) != 1 {
		t.Fatalf("expected dedup to 1 order id, got %d", len(ids))
	}
	if ids[0] != order.ID {
		t.Errorf("unexpected order id: %v", ids[0])
	}
}

func TestSnapshotNilOnNilError(t *testing.T) {
	t.Parallel()
	if snapshot(nil) != nil {
		t.Error("expected nil snapshot for nil error")
	}
}

func TestSnapshotCapturesMessage(t *testing.T) {
	t.Parallel()
	s := snapshot(errors.New("boom"))
	if s == nil {
		t.Fatal("expected non-nil snapshot")
	}
	if s.Message != "boom" {
		t.Errorf("expected message 'boom', got %q", s.Message)
	}
	if s.Severity != types.SeverityMedium {
		t.Errorf("expected default severity MEDIUM, got %v", s.Severity)
	}
}

func TestReciprocalRatio18InvertsHalf(t *testing.T) {
	t.Parallel()
	half := new(big.Int).Div(types.Scale18, big.NewInt(2))
	got := reciprocalRatio18(half)
	want := new(big.Int).Mul(types.Scale18, big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Errorf("reciprocalRatio18(0.5e18) = %s, want %s", got, want)
	}
}

func TestReciprocalRatio18ZeroIsZero(t *testing.T) {
	t.Parallel()
	if got := reciprocalRatio18(big.NewInt(0)); got.Sign() != 0 {
		t.Errorf("expected zero, got %s", got)
	}
	if got := reciprocalRatio18(nil); got.Sign() != 0 {
		t.Errorf("expected zero for nil input, got %s", got)
	}
}

func TestTryIntraOrderbookNilOpposingFallsBack(t *testing.T) {
	t.Parallel()
	p := &Processor{logger: discardLogger()}
	bp := types.BP{TakeOrders: []types.TO{{Order: &types.Order{ID: common.Hash{1}}}}}
	_, ok := p.tryIntraOrderbook(context.Background(), bp, nil, big.NewInt(1), big.NewInt(1))
	if ok {
		t.Error("expected no intra-orderbook attempt without an opposing BP")
	}
}

func TestTryIntraOrderbookEmptyTakeOrdersFallsBack(t *testing.T) {
	t.Parallel()
	p := &Processor{logger: discardLogger()}
	bp := types.BP{}
	opposing := &types.BP{TakeOrders: []types.TO{{Order: &types.Order{ID: common.Hash{2}}}}}
	_, ok := p.tryIntraOrderbook(context.Background(), bp, opposing, big.NewInt(1), big.NewInt(1))
	if ok {
		t.Error("expected no intra-orderbook attempt with an empty BP")
	}
}
