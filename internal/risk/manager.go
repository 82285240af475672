// Package risk tracks wallet-fund health and halt-reason frequency across
// rounds.
//
// The manager runs as a standalone goroutine that receives a PairOutcome
// for every pair report the round runner produces and aggregates it:
//
//   - Halt-reason counts:     how often each types.HaltReason has fired
//   - Consecutive NoWalletFund: how many pair outcomes in a row were
//     NoWalletFund (any other outcome resets the count)
//   - Cumulative net profit/gas cost across the run
//
// When NoWalletFund fires, the manager engages a cooldown — scaling with
// consecutive occurrences up to a configured cap — and emits a
// WalletFundSignal on SignalCh(). The round runner reads this to extend its
// inter-round sleep rather than hammering a wallet that's out of funds.
// After the cooldown window elapses, InCooldown reports false again and
// normal round cadence resumes.
package risk

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

// PairOutcome is sent by the round runner once per processed pair report.
type PairOutcome struct {
	TokenPair  string
	HaltReason types.HaltReason
	NetProfit  *big.Int
	GasCost    *big.Int
	Timestamp  time.Time
}

// WalletFundSignal tells the round runner the wallet-fund cooldown state
// changed. Active=false means the cooldown has cleared.
type WalletFundSignal struct {
	Active bool
	Until  time.Time
}

// Manager aggregates halt-reason/wallet-fund state across a run.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu                      sync.RWMutex
	haltCounts              map[types.HaltReason]int
	consecutiveNoWalletFund int
	cumulativeNetProfit     *big.Int
	cumulativeGasCost       *big.Int
	cooldownActive          bool
	cooldownUntil           time.Time

	reportCh chan PairOutcome
	signalCh chan WalletFundSignal
}

// NewManager creates a risk manager.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:                 cfg,
		logger:              logger.With("component", "risk"),
		haltCounts:          make(map[types.HaltReason]int),
		cumulativeNetProfit: big.NewInt(0),
		cumulativeGasCost:   big.NewInt(0),
		reportCh:            make(chan PairOutcome, 256),
		signalCh:            make(chan WalletFundSignal, 4),
	}
}

// Run starts the aggregation loop; blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case o := <-m.reportCh:
			m.process(o)
		case <-ticker.C:
			m.clearExpiredCooldown()
		}
	}
}

// Report submits a pair outcome (non-blocking).
func (m *Manager) Report(o PairOutcome) {
	select {
	case m.reportCh <- o:
	default:
		m.logger.Warn("risk report channel full, dropping outcome", "pair", o.TokenPair)
	}
}

// SignalCh returns the channel the round runner reads wallet-fund cooldown
// transitions from.
func (m *Manager) SignalCh() <-chan WalletFundSignal {
	return m.signalCh
}

// InCooldown reports whether the wallet-fund cooldown is currently active,
// clearing it first if its window has elapsed.
func (m *Manager) InCooldown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cooldownActive {
		return false
	}
	if time.Now().After(m.cooldownUntil) {
		m.cooldownActive = false
		m.logger.Info("wallet fund cooldown expired")
		return false
	}
	return true
}

// CooldownUntil returns the current cooldown deadline (zero if inactive).
func (m *Manager) CooldownUntil() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cooldownUntil
}

// Snapshot is aggregate risk state for telemetry/dashboard consumption.
type Snapshot struct {
	HaltCounts              map[types.HaltReason]int
	ConsecutiveNoWalletFund int
	CooldownActive          bool
	CooldownUntil           time.Time
	CumulativeNetProfit     *big.Int
	CumulativeGasCost       *big.Int
}

// Snapshot returns a point-in-time copy of the manager's aggregate state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[types.HaltReason]int, len(m.haltCounts))
	for k, v := range m.haltCounts {
		counts[k] = v
	}

	return Snapshot{
		HaltCounts:              counts,
		ConsecutiveNoWalletFund: m.consecutiveNoWalletFund,
		CooldownActive:          m.cooldownActive,
		CooldownUntil:           m.cooldownUntil,
		CumulativeNetProfit:     new(big.Int).Set(m.cumulativeNetProfit),
		CumulativeGasCost:       new(big.Int).Set(m.cumulativeGasCost),
	}
}

func (m *Manager) process(o PairOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.haltCounts[o.HaltReason]++
	if o.NetProfit != nil {
		m.cumulativeNetProfit.Add(m.cumulativeNetProfit, o.NetProfit)
	}
	if o.GasCost != nil {
		m.cumulativeGasCost.Add(m.cumulativeGasCost, o.GasCost)
	}

	if !o.HaltReason.Terminal() {
		m.consecutiveNoWalletFund = 0
		return
	}

	m.consecutiveNoWalletFund++
	m.engageCooldown(o.TokenPair)
}

// engageCooldown activates the cooldown, scaling the wait by how many
// consecutive NoWalletFund halts have fired, capped at WalletFundBackoffMax.
func (m *Manager) engageCooldown(pair string) {
	wait := m.cfg.WalletFundCooldown
	if m.cfg.WalletFundBackoffMax > 0 {
		scaled := wait * time.Duration(m.consecutiveNoWalletFund)
		if scaled > m.cfg.WalletFundBackoffMax {
			scaled = m.cfg.WalletFundBackoffMax
		}
		wait = scaled
	}

	m.cooldownActive = true
	m.cooldownUntil = time.Now().Add(wait)

	m.logger.Error("wallet fund cooldown engaged",
		"pair", pair,
		"consecutive", m.consecutiveNoWalletFund,
		"cooldown_until", m.cooldownUntil,
	)

	sig := WalletFundSignal{Active: true, Until: m.cooldownUntil}
	select {
	case m.signalCh <- sig:
	default:
		select {
		case <-m.signalCh:
		default:
		}
		m.signalCh <- sig
	}
}

func (m *Manager) clearExpiredCooldown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cooldownActive && time.Now().After(m.cooldownUntil) {
		m.cooldownActive = false
		m.logger.Info("wallet fund cooldown expired")
	}
}
