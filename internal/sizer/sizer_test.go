package sizer

import (
	"context"
	"math/big"
	"testing"

	"polymarket-mm/pkg/types"
)

func TestRunFullBalanceSucceedsAtFirstHop(t *testing.T) {
	t.Parallel()
	vault := big.NewInt(1e9)
	calls := 0

	dryrun := func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome {
		calls++
		return types.DryrunOutcome{Success: true, MaxInput: maxInput}
	}

	outcome := Run(context.Background(), Config{Hops: 7}, vault, dryrun)
	if !outcome.Success {
		t.Fatal("expected success")
	}
	if outcome.MaxInput.Cmp(vault) != 0 {
		t.Errorf("expected maxInput == vaultBalance, got %s", outcome.MaxInput)
	}
	if calls != 1 {
		t.Errorf("expected early return at j=1, got %d calls", calls)
	}
}

func TestRunNeverExceedsVaultBalance(t *testing.T) {
	t.Parallel()
	vault := big.NewInt(1_000_000)

	dryrun := func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome {
		if maxInput.Cmp(vault) > 0 {
			t.Fatalf("dryrun called with maxInput %s > vaultBalance %s", maxInput, vault)
		}
		// Only succeed below 40% of balance, forcing several downward steps.
		threshold := new(big.Int).Quo(new(big.Int).Mul(vault, big.NewInt(40)), big.NewInt(100))
		if maxInput.Cmp(threshold) <= 0 {
			return types.DryrunOutcome{Success: true, MaxInput: maxInput}
		}
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoOpportunity}
	}

	outcome := Run(context.Background(), Config{Hops: 7}, vault, dryrun)
	if outcome.Success && outcome.MaxInput.Cmp(vault) > 0 {
		t.Fatalf("returned maxInput %s exceeds vaultBalance %s", outcome.MaxInput, vault)
	}
}

func TestRunAllNoRouteYieldsNoRoute(t *testing.T) {
	t.Parallel()
	vault := big.NewInt(1000)

	dryrun := func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome {
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoRoute}
	}

	outcome := Run(context.Background(), Config{Hops: 5}, vault, dryrun)
	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Reason != types.HaltNoRoute {
		t.Errorf("expected NoRoute, got %v", outcome.Reason)
	}
}

func TestRunNoWalletFundAbortsImmediately(t *testing.T) {
	t.Parallel()
	vault := big.NewInt(1000)
	calls := 0

	dryrun := func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome {
		calls++
		return types.DryrunOutcome{Success: false, Reason: types.HaltNoWalletFund}
	}

	outcome := Run(context.Background(), Config{Hops: 7}, vault, dryrun)
	if outcome.Reason != types.HaltNoWalletFund {
		t.Fatalf("expected NoWalletFund, got %v", outcome.Reason)
	}
	if calls != 1 {
		t.Errorf("expected sizer to stop after first NoWalletFund, got %d calls", calls)
	}
}

func TestRunWithRetriesPicksLargestMaxInput(t *testing.T) {
	t.Parallel()
	vault := big.NewInt(1e9)

	dryrunForMode := func(mode types.Mode) Dryrun {
		return func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome {
			size := maxInput
			switch mode {
			case types.ModeTriple:
				size = big.NewInt(300)
			case types.ModeDouble:
				size = big.NewInt(200)
			default:
				size = big.NewInt(100)
			}
			return types.DryrunOutcome{Success: true, MaxInput: size}
		}
	}

	outcome, err := RunWithRetries(context.Background(), Config{Hops: 7}, 3, vault, dryrunForMode)
	if err != nil {
		t.Fatalf("RunWithRetries: %v", err)
	}
	if outcome.MaxInput.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("expected the triple-mode (largest) outcome, got maxInput=%s", outcome.MaxInput)
	}
}

func TestRunWithRetriesNoWalletFundWins(t *testing.T) {
	t.Parallel()
	vault := big.NewInt(1e9)

	dryrunForMode := func(mode types.Mode) Dryrun {
		return func(ctx context.Context, maxInput *big.Int) types.DryrunOutcome {
			if mode == types.ModeDouble {
				return types.DryrunOutcome{Reason: types.HaltNoWalletFund}
			}
			return types.DryrunOutcome{Success: true, MaxInput: big.NewInt(1)}
		}
	}

	outcome, err := RunWithRetries(context.Background(), Config{Hops: 7}, 3, vault, dryrunForMode)
	if err != nil {
		t.Fatalf("RunWithRetries: %v", err)
	}
	if outcome.Reason != types.HaltNoWalletFund {
		t.Errorf("expected NoWalletFund to win regardless of other outcomes, got %v", outcome.Reason)
	}
}
