package telemetry

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/risk"
	"polymarket-mm/pkg/types"
)

// DashboardEvent is the wrapper for every event pushed to the dashboard.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "pair_report", "wallet_fund_cooldown"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// RoundSnapshot is the complete dashboard state: the most recently
// completed round's pair reports, aggregate risk state, and a config summary.
type RoundSnapshot struct {
	Timestamp time.Time         `json:"timestamp"`
	Pairs     []PairReportView  `json:"pairs"`
	Risk      RiskSnapshotView  `json:"risk"`
	Config    ConfigSummary     `json:"config"`
}

// PairReportView is types.PairReport with 18-decimal fixed-point amounts
// converted to shopspring/decimal strings at this presentation boundary —
// the core never does this conversion itself (see pkg/types).
type PairReportView struct {
	TokenPair     string   `json:"token_pair"`
	Status        string   `json:"status"`
	BuyToken      string   `json:"buy_token"`
	SellToken     string   `json:"sell_token"`
	TxURL         string   `json:"tx_url,omitempty"`
	ClearedAmount string   `json:"cleared_amount,omitempty"`
	Income        string   `json:"income,omitempty"`
	NetProfit     string   `json:"net_profit,omitempty"`
	GasCost       string   `json:"gas_cost,omitempty"`
	ClearedOrders []string `json:"cleared_orders,omitempty"`
	HaltReason    string   `json:"halt_reason,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewPairReportView converts a core report into its dashboard-ready form.
func NewPairReportView(r types.PairReport) PairReportView {
	view := PairReportView{
		TokenPair:  r.TokenPair,
		Status:     r.Status.String(),
		BuyToken:   r.BuyToken.Hex(),
		SellToken:  r.SellToken.Hex(),
		TxURL:      r.TxURL,
		HaltReason: r.HaltReason.String(),
		Timestamp:  r.Timestamp,
	}

	if r.ClearedAmount != nil {
		view.ClearedAmount = fixed18ToDecimal(r.ClearedAmount).String()
	}
	if r.Income != nil {
		view.Income = fixed18ToDecimal(r.Income).String()
	}
	if r.NetProfit != nil {
		view.NetProfit = fixed18ToDecimal(r.NetProfit).String()
	}
	if r.GasCost != nil {
		view.GasCost = fixed18ToDecimal(r.GasCost).String()
	}
	for _, id := range r.ClearedOrders {
		view.ClearedOrders = append(view.ClearedOrders, id.Hex())
	}
	if r.Err != nil {
		view.ErrorMessage = r.Err.Message
	}

	return view
}

// RiskSnapshotView is risk.Snapshot with HaltReason keys stringified and
// big.Int totals converted for JSON/dashboard consumption.
type RiskSnapshotView struct {
	HaltCounts              map[string]int `json:"halt_counts"`
	ConsecutiveNoWalletFund int            `json:"consecutive_no_wallet_fund"`
	CooldownActive          bool           `json:"cooldown_active"`
	CooldownUntil           time.Time      `json:"cooldown_until,omitempty"`
	CumulativeNetProfit     string         `json:"cumulative_net_profit"`
	CumulativeGasCost       string         `json:"cumulative_gas_cost"`
}

// NewRiskSnapshotView converts a risk manager snapshot to its dashboard form.
func NewRiskSnapshotView(s risk.Snapshot) RiskSnapshotView {
	counts := make(map[string]int, len(s.HaltCounts))
	for k, v := range s.HaltCounts {
		counts[k.String()] = v
	}
	return RiskSnapshotView{
		HaltCounts:              counts,
		ConsecutiveNoWalletFund: s.ConsecutiveNoWalletFund,
		CooldownActive:          s.CooldownActive,
		CooldownUntil:           s.CooldownUntil,
		CumulativeNetProfit:     fixed18ToDecimal(s.CumulativeNetProfit).String(),
		CumulativeGasCost:       fixed18ToDecimal(s.CumulativeGasCost).String(),
	}
}

// ConfigSummary is the subset of config.Config worth surfacing on a
// dashboard: operational mode and the tunables that shape round behaviour.
type ConfigSummary struct {
	DryRun                bool   `json:"dry_run"`
	ChainID               int64  `json:"chain_id"`
	RouteProcessorVersion string `json:"route_processor_version"`
	GasCoveragePct        int    `json:"gas_coverage_pct"`
	SizerHops             int    `json:"sizer_hops"`
	SizerRetries          int    `json:"sizer_retries"`
	RoundSleep            string `json:"round_sleep"`
	Bundle                bool   `json:"bundle"`
}

// NewConfigSummary builds a dashboard-ready config summary.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		DryRun:                cfg.DryRun,
		ChainID:               cfg.Wallet.ChainID,
		RouteProcessorVersion: cfg.Contracts.RouteProcessorVer,
		GasCoveragePct:        cfg.Contracts.GasCoveragePct,
		SizerHops:             cfg.Sizer.Hops,
		SizerRetries:          cfg.Sizer.Retries,
		RoundSleep:            cfg.Round.Sleep.String(),
		Bundle:                cfg.Orders.Bundle,
	}
}

func fixed18ToDecimal(x *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x, -18)
}

// NewReportEvent wraps a pair report for dashboard push.
func NewReportEvent(r types.PairReport) DashboardEvent {
	return DashboardEvent{Type: "pair_report", Timestamp: r.Timestamp, Data: NewPairReportView(r)}
}

// NewWalletFundEvent wraps a wallet-fund cooldown transition for dashboard push.
func NewWalletFundEvent(sig risk.WalletFundSignal) DashboardEvent {
	return DashboardEvent{Type: "wallet_fund_cooldown", Timestamp: time.Now(), Data: sig}
}
