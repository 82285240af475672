// Package pair implements the Pair Processor (C7): the end-to-end,
// per-bundle state machine that fetches balances, drives the sizer, submits
// the winning transaction, waits for its receipt, and compiles a report.
// The tick-shaped orchestration (fetch state → compute → act → report)
// follows the teacher's strategy/maker.go quoteUpdate loop; per-opportunity
// span/log attribution follows fd1az-arbitrage-bot's detector.go
// analyzeOpportunity. Submission is guarded by sony/gobreaker/v2 the way
// fd1az-arbitrage-bot's go.mod pulls it in for exactly this "don't hammer a
// broken endpoint" role.
package pair

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker/v2"

	"polymarket-mm/internal/chain"
	"polymarket-mm/internal/dryrun"
	"polymarket-mm/internal/sizer"
	"polymarket-mm/pkg/types"
)

// State is the per-pair state-machine position from spec.md §4.7, tracked
// for logging and telemetry only: control flow branches on
// types.HaltReason and plain error returns, never on State.
type State int

const (
	StateInit State = iota
	StateHaveBalance
	StateHaveGasAndEthPrice
	StateHavePools
	StateHaveOpportunity
	StateSubmitted
	StateMinedOK
	StateMinedReverted
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateHaveBalance:
		return "HaveBalance"
	case StateHaveGasAndEthPrice:
		return "HaveGas&EthPrice"
	case StateHavePools:
		return "HavePools"
	case StateHaveOpportunity:
		return "HaveOpportunity"
	case StateSubmitted:
		return "Submitted"
	case StateMinedOK:
		return "Mined:ok"
	case StateMinedReverted:
		return "Mined:reverted"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Init"
	}
}

// Wallet signs and sends the winning transaction for a pair. Key custody
// and nonce sequencing are an external collaborator per SPEC_FULL.md §1;
// the processor only calls SendTransaction.
type Wallet interface {
	Address() common.Address
	SendTransaction(ctx context.Context, tx types.RawTx) (common.Hash, error)
}

// Receipt is the minimal shape C7 needs from a mined transaction.
type Receipt struct {
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	BlockNumber       uint64
}

// ReceiptWaiter waits for a submitted transaction to mine, honouring
// whatever deadline ctx carries — the promiseTimeout combinator of
// spec.md §5 is expressed here as plain context.WithTimeout at the call
// site, not a bespoke wrapper type.
type ReceiptWaiter interface {
	WaitReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)
}

// Config tunes one processor instance.
type Config struct {
	MaxRatio      bool // skip the price ceiling (spec.md §6 maxRatio)
	SubmitTimeout time.Duration
	Sizer         sizer.Config
	Retries       int
}

// Processor drives one BP through Init → HaveBalance → HaveGas&EthPrice →
// HavePools → {HaveOpportunity|NoOpportunity|EmptyVault} → Submitted →
// Mined. Submission goes through a circuit breaker so a consistently
// failing RPC/relay stops receiving traffic instead of being retried
// forever; read paths (balance, gas, route) are unaffected.
type Processor struct {
	chain    *chain.Client
	runner   *dryrun.Runner
	cfg      Config
	wallet   Wallet
	flashbot Wallet // optional private-RPC submission path
	receipts ReceiptWaiter
	breaker  *gobreaker.CircuitBreaker[common.Hash]
	logger   *slog.Logger
}

func NewProcessor(c *chain.Client, runner *dryrun.Runner, cfg Config, wallet, flashbot Wallet, receipts ReceiptWaiter, logger *slog.Logger) *Processor {
	settings := gobreaker.Settings{
		Name:        "tx-submit",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Processor{
		chain:    c,
		runner:   runner,
		cfg:      cfg,
		wallet:   wallet,
		flashbot: flashbot,
		receipts: receipts,
		breaker:  gobreaker.NewCircuitBreaker[common.Hash](settings),
		logger:   logger.With("component", "pair"),
	}
}

// Process runs the full C7 pipeline for one BP. opposing is the mirror BP
// on the same orderbook (buyToken/sellToken swapped), when the round has
// one bundled; it is nil when no opposing side exists. NoWalletFund
// surfaces inside the returned PairReport's HaltReason, never as a Go
// error — the round runner is the one that decides to stop the round on
// it, per spec.md §7's propagation policy.
func (p *Processor) Process(ctx context.Context, bp types.BP, opposing *types.BP) types.PairReport {
	report := types.PairReport{
		TokenPair: fmt.Sprintf("%s/%s", bp.SellSymbol, bp.BuySymbol),
		BuyToken:  bp.BuyToken,
		SellToken: bp.SellToken,
		Timestamp: time.Now(),
	}
	logger := p.logger.With(
		"orderbook", bp.Orderbook.Hex(),
		"sell", bp.SellToken.Hex(),
		"buy", bp.BuyToken.Hex(),
	)

	vaultBalance, err := p.chain.BalanceOf(ctx, bp.SellToken, bp.Orderbook)
	if err != nil {
		report.HaltReason = types.HaltFailedToGetVaultBalance
		report.Err = snapshot(err)
		return report
	}
	logger.Debug("state", "state", StateHaveBalance.String())
	if vaultBalance.Sign() == 0 {
		report.Status = types.StatusEmptyVault
		return report
	}

	gasPrice, err := p.chain.GasPrice(ctx)
	if err != nil {
		report.HaltReason = types.HaltFailedToGetGasPrice
		report.Err = snapshot(err)
		logger.Warn("failed to get gas price", "error", err)
		return report
	}
	ethPrice, found, err := p.chain.EthPrice(ctx, bp.BuyToken, bp.BuyDecimals)
	if err != nil {
		report.HaltReason = types.HaltFailedToGetEthPrice
		report.Err = snapshot(err)
		logger.Warn("failed to get eth price", "error", err)
		return report
	}
	if !found {
		ethPrice = big.NewInt(0)
	}
	logger.Debug("state", "state", StateHaveGasAndEthPrice.String())

	if intraOutcome, ok := p.tryIntraOrderbook(ctx, bp, opposing, gasPrice, ethPrice); ok {
		logger.Info("opportunity found", "state", StateHaveOpportunity.String(), "path", "intra-orderbook")
		return p.finishPair(ctx, bp, report, logger, intraOutcome, ethPrice)
	}

	outcome, err := p.sizeOpportunity(ctx, bp, vaultBalance, gasPrice, ethPrice)
	if err != nil {
		report.HaltReason = types.HaltUnexpectedError
		report.Err = snapshot(err)
		return report
	}
	logger.Debug("state", "state", StateHavePools.String())

	if !outcome.Success {
		report.HaltReason = outcome.Reason
		if outcome.ErrorSnapshot != nil {
			report.Err = outcome.ErrorSnapshot
		}
		return report
	}
	logger.Info("opportunity found", "state", StateHaveOpportunity.String(), "max_input", outcome.MaxInput)

	return p.finishPair(ctx, bp, report, logger, outcome, ethPrice)
}

// finishPair submits a successful dryrun outcome (route-processor or
// intra-orderbook — both yield the same types.DryrunOutcome shape) and
// compiles the final report: submit, wait for receipt, compute net
// profit from the actual pre/post buy-token balance delta.
func (p *Processor) finishPair(ctx context.Context, bp types.BP, report types.PairReport, logger *slog.Logger, outcome types.DryrunOutcome, ethPrice *big.Int) types.PairReport {
	submitCtx := ctx
	if p.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, p.cfg.SubmitTimeout)
		defer cancel()
	}

	preBalance, preErr := p.chain.BalanceOf(submitCtx, bp.BuyToken, p.wallet.Address())

	txHash, err := p.submit(submitCtx, outcome.RawTx)
	if err != nil {
		report.Status = types.StatusFoundOpportunity
		report.HaltReason = types.HaltTxFailed
		report.Err = snapshot(err)
		return report
	}
	logger.Info("submitted", "state", StateSubmitted.String(), "tx", txHash.Hex())
	report.TxURL = txHash.Hex()

	receipt, err := p.receipts.WaitReceipt(submitCtx, txHash)
	if err != nil {
		report.Status = types.StatusFoundOpportunity
		report.HaltReason = types.HaltTxMineFailed
		report.Err = snapshot(err)
		logger.Warn("state", "state", StateTimedOut.String(), "error", err)
		return report
	}

	if receipt.Status == 0 {
		report.Status = types.StatusFoundOpportunity
		report.HaltReason = types.HaltTxMineFailed
		report.Err = p.reSimulateForRevertReason(ctx, outcome.RawTx, receipt.BlockNumber)
		logger.Warn("state", "state", StateMinedReverted.String())
		return report
	}

	gasCostWei := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	gasCostInToken := new(big.Int).Quo(new(big.Int).Mul(gasCostWei, ethPrice), types.Scale18)

	income := outcome.EstimatedProfit
	if preErr == nil {
		if postBalance, postErr := p.chain.BalanceOf(ctx, bp.BuyToken, p.wallet.Address()); postErr == nil {
			income = new(big.Int).Sub(postBalance, preBalance)
		}
	}
	if income == nil {
		income = big.NewInt(0)
	}
	netProfit := new(big.Int).Sub(income, gasCostInToken)

	report.Status = types.StatusFoundOpportunity
	report.ClearedAmount = outcome.MaxInput
	report.Income = income
	report.GasCost = gasCostInToken
	report.NetProfit = netProfit
	report.ClearedOrders = clearedOrderIDs(bp)
	logger.Info("pair cleared", "state", StateMinedOK.String(), "net_profit", netProfit)
	return report
}

// sizeOpportunity runs the route-processor sizer (C4+C6). A BP carrying more
// than one take-order first gets one bundle-mode attempt at its full vault
// balance — clearing every TO in a single call, per spec.md §4.4.5 — before
// falling back to the Single/Double/Triple fan-out the binary search already
// performs on the lead order alone.
func (p *Processor) sizeOpportunity(ctx context.Context, bp types.BP, vaultBalance, gasPrice, ethPrice *big.Int) (types.DryrunOutcome, error) {
	dryrunForMode := p.dryrunForMode(bp, gasPrice, ethPrice)
	if len(bp.TakeOrders) > 1 {
		if outcome := sizer.Run(ctx, p.cfg.Sizer, vaultBalance, dryrunForMode(types.ModeBundle)); outcome.Success {
			return outcome, nil
		}
	}
	return sizer.RunWithRetries(ctx, p.cfg.Sizer, p.cfg.Retries, vaultBalance, dryrunForMode)
}

// reciprocalRatio18 inverts an 18-decimal output-per-input ratio into
// input-per-output, the convention IntraOrderbookDryrun's alice.ratio *
// bob.ratio < 1 profitability check (spec.md §4.5 / S7) is expressed in.
// Quote.Ratio itself is always stored output-per-input (see types.Quote);
// this conversion is local to the intra-orderbook attempt and never mutates
// the BP's own TakeOrders.
func reciprocalRatio18(x *big.Int) *big.Int {
	if x == nil || x.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(new(big.Int).Mul(types.Scale18, types.Scale18), x)
}

// tryIntraOrderbook attempts C5 against opposing, the mirror BP on the same
// orderbook with sellToken/buyToken swapped. It only ever pairs the lead
// take-order of each side — alice.ratio * bob.ratio < 1 is itself only
// comparing two single orders, not a bundle. A failed or unavailable attempt
// falls back silently to the route-processor path in Process.
func (p *Processor) tryIntraOrderbook(ctx context.Context, bp types.BP, opposing *types.BP, gasPrice, ethPrice *big.Int) (types.DryrunOutcome, bool) {
	if opposing == nil || len(bp.TakeOrders) == 0 || len(opposing.TakeOrders) == 0 {
		return types.DryrunOutcome{}, false
	}

	alice := bp.TakeOrders[0]
	bob := opposing.TakeOrders[0]
	alice.Quote.Ratio = reciprocalRatio18(alice.Quote.Ratio)
	bob.Quote.Ratio = reciprocalRatio18(bob.Quote.Ratio)

	outcome, err := p.runner.IntraOrderbookDryrun(ctx, alice, bob, gasPrice, ethPrice)
	if err != nil {
		p.logger.Debug("intra-orderbook dryrun unavailable, falling back to route-processor", "error", err)
		return types.DryrunOutcome{}, false
	}
	return outcome, outcome.Success
}

// dryrunForMode binds a BP/gasPrice/ethPrice context into a sizer.Dryrun
// per mode, tracking locally whether this is the first hop so the
// first-hop-only filtered-clone mutation (spec.md §3, §9) is applied
// exactly once per mode's independent binary search.
func (p *Processor) dryrunForMode(bp types.BP, gasPrice, ethPrice *big.Int) func(mode types.Mode) sizer.Dryrun {
	return func(mode types.Mode) sizer.Dryrun {
		workingBP := bp
		firstHop := true
		return func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome {
			isFirst := firstHop
			firstHop = false
			outcome, clone := p.runner.RouteProcessorDryrun(ctx, workingBP, maxInput, gasPrice, ethPrice, mode, isFirst, !p.cfg.MaxRatio)
			if isFirst {
				workingBP = clone
			}
			return outcome
		}
	}
}

// submit routes through the flashbot wallet when configured, guarded by
// the circuit breaker so repeated submission failures stop hammering a
// broken relay.
func (p *Processor) submit(ctx context.Context, tx types.RawTx) (common.Hash, error) {
	wallet := p.wallet
	if p.flashbot != nil {
		wallet = p.flashbot
	}
	return p.breaker.Execute(func() (common.Hash, error) {
		return wallet.SendTransaction(ctx, tx)
	})
}

// reSimulateForRevertReason re-runs the mined transaction at its own block
// to recover a decodable revert reason, per spec.md §4.7's "re-simulate the
// same tx at the mined block" rule.
func (p *Processor) reSimulateForRevertReason(ctx context.Context, tx types.RawTx, blockNumber uint64) *types.ErrorSnapshot {
	block := new(big.Int).SetUint64(blockNumber)
	to := tx.To
	_, err := p.chain.EthClient().CallContract(ctx, ethereum.CallMsg{To: &to, Data: tx.Data, Value: tx.Value}, block)
	if err == nil {
		return &types.ErrorSnapshot{
			Message:  "receipt reverted but re-simulation at the mined block succeeded",
			Severity: types.SeverityMedium,
		}
	}
	return snapshot(err)
}

func snapshot(err error) *types.ErrorSnapshot {
	if err == nil {
		return nil
	}
	return &types.ErrorSnapshot{
		Message:  err.Error(),
		Name:     fmt.Sprintf("%T", err),
		Severity: types.SeverityMedium,
	}
}

func clearedOrderIDs(bp types.BP) []common.Hash {
	seen := make(map[common.Hash]bool, len(bp.TakeOrders))
	ids := make([]common.Hash, 0, len(bp.TakeOrders))
	for _, to := range bp.TakeOrders {
		if seen[to.Order.ID] {
			continue
		}
		seen[to.Order.ID] = true
		ids = append(ids, to.Order.ID)
	}
	return ids
}
