package dryrun

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/internal/simulate"
	"polymarket-mm/pkg/types"
)

// fakeCaller always succeeds, standing in for a node that accepts whatever
// gas the simulator's bisection proposes.
type fakeCaller struct{}

func (fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func fixed(whole float64) *big.Int {
	f := new(big.Int).SetInt64(int64(whole * 1e9))
	return new(big.Int).Mul(f, big.NewInt(1e9))
}

func testOrder(id byte, owner common.Address) *types.Order {
	return &types.Order{
		ID:    common.Hash{id},
		Owner: owner,
		Inputs: []types.IO{{Token: common.HexToAddress("0xa"), Decimals: 18}},
		Outputs: []types.IO{{Token: common.HexToAddress("0xb"), Decimals: 18}},
		Evaluable: []byte{0x01},
	}
}

func TestIntraOrderbookRejectsSameOrder(t *testing.T) {
	t.Parallel()
	owner := common.HexToAddress("0x1")
	order := testOrder(1, owner)
	alice := types.TO{Order: order, Quote: types.Quote{Ratio: fixed(0.4)}}

	r := NewRunner(nil, nil, common.Address{}, common.Address{}, "4", 0, false)
	_, err := r.IntraOrderbookDryrun(nil, alice, alice, big.NewInt(1), big.NewInt(1))
	if err == nil {
		t.Fatal("expected error for identical order ids")
	}
}

func TestIntraOrderbookRejectsNoOverlap(t *testing.T) {
	t.Parallel()
	aliceOwner := common.HexToAddress("0x1")
	bobOwner := common.HexToAddress("0x2")
	alice := types.TO{Order: testOrder(1, aliceOwner), Quote: types.Quote{Ratio: fixed(1.5)}}
	bob := types.TO{Order: testOrder(2, bobOwner), Quote: types.Quote{Ratio: fixed(1.5)}}

	r := NewRunner(nil, nil, common.Address{}, common.Address{}, "4", 0, false)
	outcome, err := r.IntraOrderbookDryrun(nil, alice, bob, big.NewInt(1), big.NewInt(1))
	if err != nil {
		t.Fatalf("IntraOrderbookDryrun: %v", err)
	}
	if outcome.Success {
		t.Fatal("expected rejection: ratio product >= 1e18")
	}
	if outcome.Reason != types.HaltNoOpportunity {
		t.Errorf("expected HaltNoOpportunity, got %v", outcome.Reason)
	}
}

func TestIntraOrderbookClearsProfitablePair(t *testing.T) {
	t.Parallel()
	aliceOwner := common.HexToAddress("0x1")
	bobOwner := common.HexToAddress("0x2")
	// Reciprocal-convention ratios (input per output): 0.4 * 0.4 = 0.16 < 1,
	// the profitable case.
	alice := types.TO{Order: testOrder(1, aliceOwner), Quote: types.Quote{Ratio: fixed(0.4)}}
	bob := types.TO{Order: testOrder(2, bobOwner), Quote: types.Quote{Ratio: fixed(0.4)}}

	sim := simulate.New(fakeCaller{}, simulate.Config{GasCap: 500000})
	r := NewRunner(nil, sim, common.HexToAddress("0xarb"), common.Address{}, "4", 10, false)

	outcome, err := r.IntraOrderbookDryrun(context.Background(), alice, bob, big.NewInt(1), big.NewInt(1))
	if err != nil {
		t.Fatalf("IntraOrderbookDryrun: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("expected a successful clear, got reason %v, snapshot %+v", outcome.Reason, outcome.ErrorSnapshot)
	}
	if outcome.RawTx.To != (common.HexToAddress("0xarb")) {
		t.Errorf("expected tx directed at the arb contract, got %s", outcome.RawTx.To.Hex())
	}
}

func TestBountyAmountZeroCoverageYieldsZero(t *testing.T) {
	t.Parallel()
	b := bountyAmount(big.NewInt(1_000_000), 0, 1, 1)
	if b.Sign() != 0 {
		t.Errorf("expected zero bounty at 0%% coverage, got %s", b.String())
	}
}

func TestEncodeBountyEvaluableZeroIsEmpty(t *testing.T) {
	t.Parallel()
	if len(encodeBountyEvaluable(big.NewInt(0))) != 0 {
		t.Error("expected empty bytecode for zero minimum bounty")
	}
	if len(encodeBountyEvaluable(big.NewInt(5))) == 0 {
		t.Error("expected non-empty bytecode for nonzero minimum bounty")
	}
}
