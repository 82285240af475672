package telemetry

import (
	"time"

	"polymarket-mm/internal/config"
	"polymarket-mm/internal/risk"
	"polymarket-mm/pkg/types"
)

// RoundSnapshotProvider supplies the state BuildSnapshot aggregates.
// round.Runner satisfies this directly via its LastReports method.
type RoundSnapshotProvider interface {
	LastReports() []types.PairReport
}

// BuildSnapshot aggregates the round runner's last reports and the risk
// manager's aggregate state into one dashboard payload.
func BuildSnapshot(provider RoundSnapshotProvider, riskMgr *risk.Manager, cfg config.Config) RoundSnapshot {
	reports := provider.LastReports()
	views := make([]PairReportView, 0, len(reports))
	for _, r := range reports {
		views = append(views, NewPairReportView(r))
	}

	var riskView RiskSnapshotView
	if riskMgr != nil {
		riskView = NewRiskSnapshotView(riskMgr.Snapshot())
	}

	return RoundSnapshot{
		Timestamp: time.Now(),
		Pairs:     views,
		Risk:      riskView,
		Config:    NewConfigSummary(cfg),
	}
}
