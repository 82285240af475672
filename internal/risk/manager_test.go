package risk

import (
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		WalletFundCooldown:   time.Minute,
		WalletFundBackoffMax: 10 * time.Minute,
	}
}

func newTestManager() *Manager {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewManager(testRiskConfig(), logger)
}

func TestProcessNonTerminalHaltDoesNotEngageCooldown(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.process(PairOutcome{
		TokenPair:  "A/B",
		HaltReason: types.HaltNoOpportunity,
		Timestamp:  time.Now(),
	})

	if rm.InCooldown() {
		t.Error("non-terminal halt reason must not engage the wallet-fund cooldown")
	}
	if rm.Snapshot().HaltCounts[types.HaltNoOpportunity] != 1 {
		t.Error("expected halt count to be tallied")
	}
}

func TestProcessNoWalletFundEngagesCooldown(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.process(PairOutcome{
		TokenPair:  "A/B",
		HaltReason: types.HaltNoWalletFund,
		Timestamp:  time.Now(),
	})

	if !rm.InCooldown() {
		t.Fatal("expected NoWalletFund to engage the cooldown")
	}
	snap := rm.Snapshot()
	if snap.ConsecutiveNoWalletFund != 1 {
		t.Errorf("expected consecutive count 1, got %d", snap.ConsecutiveNoWalletFund)
	}

	select {
	case sig := <-rm.SignalCh():
		if !sig.Active {
			t.Error("expected an active wallet-fund signal")
		}
	default:
		t.Error("expected a signal to be emitted on SignalCh")
	}
}

func TestConsecutiveNoWalletFundResetsAfterRecovery(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.process(PairOutcome{TokenPair: "A/B", HaltReason: types.HaltNoWalletFund, Timestamp: time.Now()})
	rm.process(PairOutcome{TokenPair: "A/B", HaltReason: types.HaltNoWalletFund, Timestamp: time.Now()})
	if got := rm.Snapshot().ConsecutiveNoWalletFund; got != 2 {
		t.Fatalf("expected consecutive count 2, got %d", got)
	}

	rm.process(PairOutcome{TokenPair: "A/B", HaltReason: types.HaltNoOpportunity, Timestamp: time.Now()})
	if got := rm.Snapshot().ConsecutiveNoWalletFund; got != 0 {
		t.Errorf("expected consecutive count to reset to 0, got %d", got)
	}
}

func TestCooldownBackoffCapsAtConfiguredMax(t *testing.T) {
	t.Parallel()
	rm := newTestManager()
	rm.cfg.WalletFundCooldown = time.Minute
	rm.cfg.WalletFundBackoffMax = 3 * time.Minute

	for i := 0; i < 10; i++ {
		rm.process(PairOutcome{TokenPair: "A/B", HaltReason: types.HaltNoWalletFund, Timestamp: time.Now()})
	}

	until := rm.CooldownUntil()
	maxUntil := time.Now().Add(rm.cfg.WalletFundBackoffMax + time.Second)
	if until.After(maxUntil) {
		t.Errorf("cooldown deadline %v exceeds backoff cap bound %v", until, maxUntil)
	}
}

func TestCumulativeProfitAndGasCostAccumulate(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	rm.process(PairOutcome{TokenPair: "A/B", HaltReason: types.HaltNone, NetProfit: big.NewInt(100), GasCost: big.NewInt(10), Timestamp: time.Now()})
	rm.process(PairOutcome{TokenPair: "A/B", HaltReason: types.HaltNone, NetProfit: big.NewInt(50), GasCost: big.NewInt(5), Timestamp: time.Now()})

	snap := rm.Snapshot()
	if snap.CumulativeNetProfit.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("expected cumulative net profit 150, got %s", snap.CumulativeNetProfit.String())
	}
	if snap.CumulativeGasCost.Cmp(big.NewInt(15)) != 0 {
		t.Errorf("expected cumulative gas cost 15, got %s", snap.CumulativeGasCost.String())
	}
}
