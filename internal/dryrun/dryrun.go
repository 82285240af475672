// Package dryrun implements the Route-Processor Dryrun (C4) and
// Intra-Orderbook Dryrun (C5): both build calldata, probe it through the
// Transaction Simulator (C3) in two stages, and return a
// types.DryrunOutcome. Calldata assembly follows the accounts/abi Pack
// pattern from the MEV-searcher calldata builder in this pack. C4 uses the
// headroom-then-lock shape of spec.md §4.4.7: a zero-bounty probe, a second
// probe with the coverage bounty plus 3% headroom (skipped at zero
// coverage), then the exact coverage bounty locked into the final calldata.
// C5 probes with a zero bounty and then with the exact coverage bounty; it
// has no separate headroom stage.
package dryrun

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/internal/chain"
	"polymarket-mm/internal/simulate"
	"polymarket-mm/pkg/types"
)

// headroomMultiplierNum/Den apply the spec's 1.03 bounty headroom using
// integer arithmetic, never floating point, per SPEC_FULL.md §9.
const (
	headroomMultiplierNum = 103
	headroomMultiplierDen = 100
)

// ratioHeadroomNum/Den implement the 2% market-price headroom in §4.4.4.
const (
	ratioHeadroomNum = 102
	ratioHeadroomDen = 100
)

// Runner is C4+C5: it holds everything both dryrun flavours need to build
// calldata and simulate it.
type Runner struct {
	chain      *chain.Client
	sim        *simulate.Simulator
	arbAddr    common.Address
	routerAddr common.Address
	routeVer   string
	gasCovPct  int
	maxRatio   bool
}

func NewRunner(c *chain.Client, sim *simulate.Simulator, arbAddr, routerAddr common.Address, routeVer string, gasCoveragePct int, maxRatio bool) *Runner {
	return &Runner{
		chain:      c,
		sim:        sim,
		arbAddr:    arbAddr,
		routerAddr: routerAddr,
		routeVer:   routeVer,
		gasCovPct:  gasCoveragePct,
		maxRatio:   maxRatio,
	}
}

// RouteProcessorDryrun is C4. On the first hop of a bundle-mode run it may
// return a filtered clone of bp (see spec.md §4.4.4); callers must reuse
// that clone on subsequent hops instead of passing bp again, satisfying the
// "no re-entry" rule.
func (r *Runner) RouteProcessorDryrun(ctx context.Context, bp types.BP, maxInput *big.Int, gasPrice *big.Int, ethPrice *big.Int, mode types.Mode, isFirstHop bool, profitMax bool) (types.DryrunOutcome, types.BP) {
	quote, err := r.chain.BestRoute(ctx, bp.SellToken, bp.BuyToken, maxInput)
	if err != nil {
		return types.DryrunOutcome{Success: false, Reason: types.HaltUnexpectedError, NodeError: err}, bp
	}
	if !quote.Found {
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoRoute}, bp
	}

	maxInput18 := types.ToFixed18(maxInput, bp.SellDecimals)
	amountOut18 := types.ToFixed18(quote.AmountOut, bp.BuyDecimals)
	marketPrice := new(big.Int).Quo(new(big.Int).Mul(amountOut18, types.Scale18), maxInput18)

	leadRatio := bp.TakeOrders[0].Quote.Ratio
	if marketPrice.Cmp(leadRatio) < 0 {
		return types.DryrunOutcome{
			Success:       false,
			Reason:        types.HaltNoOpportunity,
			HasPriceMatch: false,
			ErrorSnapshot: &types.ErrorSnapshot{Message: "ratio greater than market price", Severity: types.SeverityLow},
		}, bp
	}

	workingBP := bp
	if isFirstHop && profitMax {
		ceiling := new(big.Int).Quo(new(big.Int).Mul(marketPrice, big.NewInt(ratioHeadroomNum)), big.NewInt(ratioHeadroomDen))
		filtered := bp.Clone()
		filtered.TakeOrders = filtered.TakeOrders[:0]
		for _, to := range bp.TakeOrders {
			if to.Quote.Ratio.Cmp(ceiling) <= 0 {
				filtered.TakeOrders = append(filtered.TakeOrders, to)
			}
		}
		if len(filtered.TakeOrders) == 0 {
			return types.DryrunOutcome{Success: false, Reason: types.HaltNoOpportunity, HasPriceMatch: true}, bp
		}
		workingBP = filtered
	}

	maxIORatio := new(big.Int).Set(marketPrice)
	if r.maxRatio {
		maxIORatio = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	}

	cfg := takeOrdersConfig{
		MinimumInput:   big.NewInt(1),
		MaximumInput:   maxInput,
		MaximumIORatio: maxIORatio,
		Orders:         encodeOrders(mode.Expand(workingBP)),
		Data:           quote.RouteCode,
	}

	zeroTask := task{Evaluable: encodeBountyEvaluable(big.NewInt(0)), SignedContext: nil}
	stage1Tx, err := r.buildArb3Tx(workingBP.Orderbook, cfg, zeroTask)
	if err != nil {
		return types.DryrunOutcome{Success: false, Reason: types.HaltUnexpectedError, NodeError: err}, bp
	}

	gas1, err := r.sim.EstimateGas(ctx, stage1Tx)
	if outcome, ok := classifySimError(err); ok {
		return outcome, bp
	} else if err != nil {
		return types.DryrunOutcome{Success: false, Reason: types.HaltUnexpectedError, NodeError: err}, bp
	}

	gasCostInToken := gasCostInBuyToken(gas1, gasPrice, ethPrice)

	rawTx := stage1Tx
	if r.gasCovPct != 0 {
		headroomBounty := bountyAmount(gasCostInToken, int64(r.gasCovPct), headroomMultiplierNum, headroomMultiplierDen)
		cfg.Orders = encodeOrders(mode.Expand(workingBP)) // same set, fresh bytecode below
		hrTask := task{Evaluable: encodeBountyEvaluable(headroomBounty)}
		stage2Tx, err := r.buildArb3Tx(workingBP.Orderbook, cfg, hrTask)
		if err != nil {
			return types.DryrunOutcome{Success: false, Reason: types.HaltUnexpectedError, NodeError: err}, bp
		}
		gas2, err := r.sim.EstimateGas(ctx, stage2Tx)
		if outcome, ok := classifySimError(err); ok {
			return outcome, bp
		} else if err != nil {
			return types.DryrunOutcome{Success: false, Reason: types.HaltUnexpectedError, NodeError: err}, bp
		}
		gasCostInToken = gasCostInBuyToken(gas2, gasPrice, ethPrice)
		exactBounty := bountyAmount(gasCostInToken, int64(r.gasCovPct), 1, 1)
		finalTask := task{Evaluable: encodeBountyEvaluable(exactBounty)}
		rawTx, err = r.buildArb3Tx(workingBP.Orderbook, cfg, finalTask)
		if err != nil {
			return types.DryrunOutcome{Success: false, Reason: types.HaltUnexpectedError, NodeError: err}, bp
		}
		rawTx.Gas = gas2
	} else {
		rawTx.Gas = gas1
	}

	profit := new(big.Int).Sub(amountOut18, gasCostInToken)

	return types.DryrunOutcome{
		Success:         true,
		RawTx:           types.RawTx{To: rawTx.To, Data: rawTx.Data, Gas: rawTx.Gas, GasPrice: gasPrice},
		MaxInput:        maxInput,
		Price:           marketPrice,
		RouteVisual:      quote.RouteVisual,
		GasCostInToken:  gasCostInToken,
		EstimatedProfit: profit,
		HasPriceMatch:   true,
	}, workingBP
}

// IntraOrderbookDryrun is C5: clears Alice's BP directly against a Bob-side
// opposing order on the same orderbook.
func (r *Runner) IntraOrderbookDryrun(ctx context.Context, alice types.TO, bob types.TO, gasPrice *big.Int, ethPrice *big.Int) (types.DryrunOutcome, error) {
	if alice.Order.ID == bob.Order.ID {
		return types.DryrunOutcome{}, fmt.Errorf("alice and bob are the same order")
	}
	if alice.Order.Owner == bob.Order.Owner {
		return types.DryrunOutcome{}, fmt.Errorf("alice and bob share an owner")
	}
	product := new(big.Int).Quo(new(big.Int).Mul(alice.Quote.Ratio, bob.Quote.Ratio), types.Scale18)
	if product.Cmp(types.Scale18) >= 0 {
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoOpportunity}, nil
	}

	buyToken := alice.BuyToken().Token
	sellToken := alice.SellToken().Token
	bountyVault := big.NewInt(1)

	clearCfg := clearConfig{
		AliceInputIOIndex:  big.NewInt(int64(alice.InputIOIdx)),
		AliceOutputIOIndex: big.NewInt(int64(alice.OutputIOIdx)),
		BobInputIOIndex:    big.NewInt(int64(bob.InputIOIdx)),
		BobOutputIOIndex:   big.NewInt(int64(bob.OutputIOIdx)),
		AliceBountyVaultID: bountyVault,
		BobBountyVaultID:   bountyVault,
	}

	clearCall, err := arbABI.Pack("clear2", alice.Order.Evaluable, bob.Order.Evaluable, clearCfg, [][]byte{}, [][]byte{})
	if err != nil {
		return types.DryrunOutcome{}, fmt.Errorf("pack clear2: %w", err)
	}
	withdrawBuy, err := arbABI.Pack("withdraw2", buyToken, bountyVault, maxUint256(), [][]byte{})
	if err != nil {
		return types.DryrunOutcome{}, fmt.Errorf("pack withdraw2(buy): %w", err)
	}

	zeroBountyTask := encodeBountyEvaluable(big.NewInt(0))
	withdrawSellZero, err := arbABI.Pack("withdraw2", sellToken, bountyVault, maxUint256(), [][]byte{zeroBountyTask})
	if err != nil {
		return types.DryrunOutcome{}, fmt.Errorf("pack withdraw2(sell): %w", err)
	}

	multicallData, err := arbABI.Pack("multicall", [][]byte{clearCall, withdrawBuy, withdrawSellZero})
	if err != nil {
		return types.DryrunOutcome{}, fmt.Errorf("pack multicall: %w", err)
	}

	stage1Tx := ethereum.CallMsg{To: &r.arbAddr, Data: multicallData}
	gas1, err := r.sim.EstimateGas(ctx, stage1Tx)
	if outcome, ok := classifySimError(err); ok {
		return outcome, nil
	} else if err != nil {
		return types.DryrunOutcome{}, err
	}

	gasCostInToken := gasCostInBuyToken(gas1, gasPrice, ethPrice)
	withdrawSellExact, err := arbABI.Pack("withdraw2", sellToken, bountyVault, maxUint256(), [][]byte{encodeBountyEvaluable(bountyAmount(gasCostInToken, int64(r.gasCovPct), 1, 1))})
	if err != nil {
		return types.DryrunOutcome{}, fmt.Errorf("pack withdraw2(sell, exact): %w", err)
	}
	multicallFinal, err := arbABI.Pack("multicall", [][]byte{clearCall, withdrawBuy, withdrawSellExact})
	if err != nil {
		return types.DryrunOutcome{}, fmt.Errorf("pack multicall final: %w", err)
	}

	stage2Tx := ethereum.CallMsg{To: &r.arbAddr, Data: multicallFinal}
	gas2, err := r.sim.EstimateGas(ctx, stage2Tx)
	if outcome, ok := classifySimError(err); ok {
		return outcome, nil
	} else if err != nil {
		return types.DryrunOutcome{}, err
	}

	return types.DryrunOutcome{
		Success:        true,
		RawTx:          types.RawTx{To: r.arbAddr, Data: multicallFinal, Gas: gas2, GasPrice: gasPrice},
		MaxInput:       alice.Quote.MaxOutput,
		GasCostInToken: gasCostInBuyToken(gas2, gasPrice, ethPrice),
		HasPriceMatch:  true,
	}, nil
}

func (r *Runner) buildArb3Tx(orderbook common.Address, cfg takeOrdersConfig, t task) (ethereum.CallMsg, error) {
	data, err := arbABI.Pack("arb3", orderbook, cfg, t)
	if err != nil {
		return ethereum.CallMsg{}, fmt.Errorf("pack arb3: %w", err)
	}
	return ethereum.CallMsg{To: &r.arbAddr, Data: data}, nil
}

func encodeOrders(tos []types.TO) [][]byte {
	out := make([][]byte, len(tos))
	for i, to := range tos {
		out[i] = to.Order.Evaluable
	}
	return out
}

// encodeBountyEvaluable returns the on-chain bytecode enforcing a minimum
// bounty; the real interpreter bytecode format is out of scope for this
// core (see SPEC_FULL.md §1) — it is treated as an opaque blob threaded
// through to the task tuple.
func encodeBountyEvaluable(minBounty *big.Int) []byte {
	if minBounty.Sign() == 0 {
		return []byte{}
	}
	return common.LeftPadBytes(minBounty.Bytes(), 32)
}

func bountyAmount(gasCostInToken *big.Int, coveragePct, num, den int64) *big.Int {
	withCoverage := new(big.Int).Quo(new(big.Int).Mul(gasCostInToken, big.NewInt(coveragePct)), big.NewInt(100))
	return new(big.Int).Quo(new(big.Int).Mul(withCoverage, big.NewInt(num)), big.NewInt(den))
}

func gasCostInBuyToken(gas uint64, gasPrice, ethPrice *big.Int) *big.Int {
	weiCost := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	return new(big.Int).Quo(new(big.Int).Mul(weiCost, ethPrice), types.Scale18)
}

func maxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

// classifySimError turns a classified simulate.Simulator error into a
// DryrunOutcome failure. Returns ok=false for transport errors the caller
// should treat as a plain error (retryable, not a halt reason).
func classifySimError(err error) (types.DryrunOutcome, bool) {
	if err == nil {
		return types.DryrunOutcome{}, false
	}
	if errors.Is(err, simulate.ErrInsufficientFunds) {
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoWalletFund}, true
	}
	var revErr *simulate.RevertError
	if errors.As(err, &revErr) {
		return types.DryrunOutcome{
			Success:       false,
			Reason:        types.HaltNoOpportunity,
			ErrorSnapshot: &types.ErrorSnapshot{Message: revErr.Error(), RevertArgs: []interface{}{revErr.Data}, Severity: types.SeverityMedium},
		}, true
	}
	return types.DryrunOutcome{}, false
}
