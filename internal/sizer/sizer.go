// Package sizer implements the Binary-Search Sizer (C6): given a vault
// balance, it drives a dryrun across H hops, halving the step each time,
// to find the largest input that still clears profitably. The bisection
// shape mirrors go-ethereum's eth/gasestimator narrowing loop; the
// concurrent retries fan-out uses golang.org/x/sync/errgroup the way
// osmosis-labs/sqs's orderbook-filler ingest plugin fans out concurrent
// per-pool work under one cancellable group.
package sizer

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"golang.org/x/sync/errgroup"

	"polymarket-mm/pkg/types"
)

// errNoWalletFund cancels the errgroup's derived context as soon as any
// peer sizer observes a NoWalletFund outcome.
var errNoWalletFund = errors.New("sizer: no wallet fund")

// Dryrun is the function signature both C4 and C5 satisfy once bound to a
// fixed BP/opposing-order/gas context: probe feasibility at maxInput.
type Dryrun func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome

// Config tunes the sizer. Hops is H in spec.md §4.6 (default 7, max 10).
type Config struct {
	Hops int
}

// Run drives dryrun across Config.Hops iterations of halving-step
// refinement, starting from cursor = vaultBalance. It implements spec.md
// §4.6 verbatim: early-return at j=1 and j=H, halving adjustment in
// between, and NoWalletFund aborting the whole sizer immediately.
func Run(ctx context.Context, cfg Config, vaultBalance *big.Int, dryrun Dryrun) types.DryrunOutcome {
	if vaultBalance.Sign() <= 0 {
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoOpportunity}
	}

	hops := cfg.Hops
	if hops <= 0 {
		hops = 7
	}
	if hops > 10 {
		hops = 10
	}

	cursor := new(big.Int).Set(vaultBalance)
	var best types.DryrunOutcome
	haveBest := false
	allNoRoute := true

	for j := 1; j <= hops; j++ {
		if cursor.Sign() <= 0 {
			break
		}
		if cursor.Cmp(vaultBalance) > 0 {
			cursor = new(big.Int).Set(vaultBalance)
		}

		outcome := dryrun(ctx, cursor)

		if outcome.Success {
			allNoRoute = false
			if j == 1 || j == hops {
				return outcome
			}
			best = outcome
			haveBest = true
			cursor = new(big.Int).Add(cursor, stepAt(vaultBalance, j+1))
			continue
		}

		if outcome.Reason == types.HaltNoWalletFund {
			return outcome
		}
		if outcome.Reason != types.HaltNoRoute {
			allNoRoute = false
		}
		cursor = new(big.Int).Sub(cursor, stepAt(vaultBalance, j+1))
	}

	if haveBest {
		return best
	}
	if allNoRoute {
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoRoute}
	}
	return types.DryrunOutcome{Success: false, Reason: types.HaltNoOpportunity}
}

// stepAt returns vaultBalance / 2^j, the halving step used at hop j.
func stepAt(vaultBalance *big.Int, j int) *big.Int {
	return new(big.Int).Rsh(vaultBalance, uint(j))
}

// RunWithRetries is findOppWithRetries: it runs Config.Retries (R) sizers
// concurrently, one per Mode in {Single, Double, Triple, ...} up to R, and
// returns the fulfilled outcome with the greatest MaxInput. Peers are
// cancelled as soon as one reports NoWalletFund, via errgroup's derived
// context — structured concurrency per SPEC_FULL.md §9, not a raw
// sync.WaitGroup with manual cancel plumbing.
func RunWithRetries(ctx context.Context, cfg Config, retries int, vaultBalance *big.Int, dryrunForMode func(mode types.Mode) Dryrun) (types.DryrunOutcome, error) {
	if retries <= 0 {
		retries = 1
	}
	if retries > 3 {
		retries = 3
	}

	g, gctx := errgroup.WithContext(ctx)
	outcomes := make([]types.DryrunOutcome, retries)
	var mu sync.Mutex
	var walletFundOutcome *types.DryrunOutcome

	modes := []types.Mode{types.ModeSingle, types.ModeDouble, types.ModeTriple}
	for i := 0; i < retries; i++ {
		i := i
		mode := modes[i]
		g.Go(func() error {
			outcome := Run(gctx, cfg, vaultBalance, dryrunForMode(mode))
			outcomes[i] = outcome
			if outcome.Reason == types.HaltNoWalletFund {
				mu.Lock()
				if walletFundOutcome == nil {
					walletFundOutcome = &outcome
				}
				mu.Unlock()
				return errNoWalletFund
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errNoWalletFund) {
		return types.DryrunOutcome{}, err
	}
	if walletFundOutcome != nil {
		return *walletFundOutcome, nil
	}

	var best types.DryrunOutcome
	haveBest := false
	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		if !haveBest || o.MaxInput.Cmp(best.MaxInput) > 0 {
			best = o
			haveBest = true
		}
	}

	if haveBest {
		return best, nil
	}
	// All peers failed; prefer the first non-NoRoute reason, matching the
	// single-sizer tie-break rule in spec.md §4.6.
	for _, o := range outcomes {
		if o.Reason != types.HaltNoRoute {
			return o, nil
		}
	}
	return outcomes[0], nil
}
