// Package round implements the Round Runner (C9): it iterates all bundles
// once per round, collects a report per pair, and terminates early only on
// NoWalletFund. Its New/Start/Stop lifecycle and ctx/cancel/wg shape is the
// teacher's internal/engine.go orchestrator, narrowed from "manage N
// concurrent market goroutines" to "run one sequential per-round sweep" —
// nonce semantics mean only one pair is ever in flight at a time
// (SPEC_FULL.md §5).
package round

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/internal/bundler"
	"polymarket-mm/internal/cache"
	"polymarket-mm/internal/pair"
	"polymarket-mm/internal/risk"
	"polymarket-mm/internal/telemetry"
	"polymarket-mm/pkg/types"
)

// DashboardPusher is the subset of telemetry.Server the round runner needs.
// Kept as an interface so Runner can be tested without a live HTTP server.
type DashboardPusher interface {
	Push(evt telemetry.DashboardEvent)
}

// OrderSource supplies the round's raw order set. Order ingestion from an
// indexer or file is an external collaborator per SPEC_FULL.md §1.
type OrderSource interface {
	LoadOrders(ctx context.Context) ([]bundler.RawOrder, error)
}

// Config tunes round behaviour.
type Config struct {
	Bundle       bool
	Shuffle      bool
	Repetitions  int // -1 = run forever
	Sleep        time.Duration
	RefreshEvery time.Duration // pool-cache refresh interval; 0 disables
}

// Runner owns one long-lived round loop.
type Runner struct {
	cfg       Config
	orders    OrderSource
	balances  bundler.BalanceReader
	routes    bundler.RouteReader
	processor *pair.Processor
	cache     *cache.Cache
	risk      *risk.Manager
	tele      *telemetry.Telemetry
	dash      DashboardPusher
	rpcs      []string
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reportsMu   sync.Mutex
	lastReports []types.PairReport
}

// New constructs a Runner. tele and dash may both be nil — telemetry and
// dashboard push are optional per SPEC_FULL.md's internal/telemetry row.
func New(cfg Config, orders OrderSource, balances bundler.BalanceReader, routes bundler.RouteReader, processor *pair.Processor, c *cache.Cache, riskMgr *risk.Manager, tele *telemetry.Telemetry, dash DashboardPusher, rpcs []string, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:       cfg,
		orders:    orders,
		balances:  balances,
		routes:    routes,
		processor: processor,
		cache:     c,
		risk:      riskMgr,
		tele:      tele,
		dash:      dash,
		rpcs:      rpcs,
		logger:    logger.With("component", "round"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the round loop and, if configured, the cache-refresh and
// risk-aggregation loops.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()

	if r.cfg.RefreshEvery > 0 && r.cache != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.cache.RunRefreshLoop(r.cfg.RefreshEvery, r.ctx.Done(), func(err error) {
				r.logger.Error("pool cache refresh failed", "error", err)
			})
		}()
	}

	if r.risk != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.risk.Run(r.ctx)
		}()
	}
}

// SetDashboard wires a dashboard pusher after construction, for the common
// case where the pusher needs the Runner itself as its snapshot provider
// (a construction-order cycle New/NewServer can't resolve any other way).
// Must be called before Start.
func (r *Runner) SetDashboard(dash DashboardPusher) {
	r.dash = dash
}

// Stop cancels the round loop and waits for it to exit.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) loop() {
	for i := 0; r.cfg.Repetitions < 0 || i < r.cfg.Repetitions; i++ {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		if r.risk != nil && r.risk.InCooldown() {
			if !r.sleepUntil(r.risk.CooldownUntil()) {
				return
			}
			continue
		}

		endpoint := r.shuffledEndpoint()
		r.logger.Info("round starting", "round", i, "rpc", endpoint)

		reports, haltedOnWalletFund := r.runOnce(r.ctx)
		r.reportsMu.Lock()
		r.lastReports = reports
		r.reportsMu.Unlock()

		if haltedOnWalletFund {
			r.logger.Error("round ended early", "reason", types.HaltNoWalletFund.String())
		} else {
			r.logger.Info("round complete", "round", i, "pairs", len(reports))
		}

		if !r.sleep() {
			return
		}
	}
}

// sleep waits out the configured inter-round sleep, returning false if the
// runner was cancelled while waiting.
func (r *Runner) sleep() bool {
	select {
	case <-r.ctx.Done():
		return false
	case <-time.After(r.cfg.Sleep):
		return true
	}
}

// sleepUntil waits until deadline (or cancellation), returning false on
// cancellation. Used to honour the risk manager's wallet-fund cooldown.
func (r *Runner) sleepUntil(deadline time.Time) bool {
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	select {
	case <-r.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// runOnce loads orders, bundles them, and processes each bundle in bundle-
// list order, stopping the round (but not the runner) the instant a pair
// reports NoWalletFund — the only halt reason that breaks the pair loop
// per SPEC_FULL.md §7. Every report, terminal or not, is forwarded to the
// risk manager so it can track consecutive occurrences and engage a
// cooldown before the next round starts.
func (r *Runner) runOnce(ctx context.Context) ([]types.PairReport, bool) {
	raws, err := r.orders.LoadOrders(ctx)
	if err != nil {
		r.logger.Error("load orders failed", "error", err)
		return nil, false
	}

	bps, err := bundler.Bundle(ctx, bundler.Config{Bundle: r.cfg.Bundle, Shuffle: r.cfg.Shuffle}, raws, r.balances, r.routes)
	if err != nil {
		r.logger.Error("bundle failed", "error", err)
		return nil, false
	}

	opposing := opposingByTriple(bps)

	reports := make([]types.PairReport, 0, len(bps))
	for _, bp := range bps {
		start := time.Now()
		report := r.processor.Process(ctx, bp, opposing[tripleKey{bp.Orderbook, bp.SellToken, bp.BuyToken}])
		reports = append(reports, report)

		if r.tele != nil {
			r.tele.RecordPair(ctx, report, time.Since(start))
		}
		if r.dash != nil {
			r.dash.Push(telemetry.NewReportEvent(report))
		}

		if r.risk != nil {
			r.risk.Report(risk.PairOutcome{
				TokenPair:  report.TokenPair,
				HaltReason: report.HaltReason,
				NetProfit:  report.NetProfit,
				GasCost:    report.GasCost,
				Timestamp:  report.Timestamp,
			})
		}

		if report.HaltReason.Terminal() {
			return reports, true
		}
	}
	return reports, false
}

// tripleKey identifies a bundle's (orderbook, sellToken, buyToken) grouping.
type tripleKey struct {
	orderbook common.Address
	sell      common.Address
	buy       common.Address
}

// opposingByTriple maps each bundle to its mirror bundle on the same
// orderbook with sellToken/buyToken swapped — the opposing side
// IntraOrderbookDryrun (C5) needs to clear Alice directly against Bob
// without going through the route processor. A triple with no mirror in
// this round's bundle list simply has no entry, and Process falls back to
// the route-processor path for it.
func opposingByTriple(bps []types.BP) map[tripleKey]*types.BP {
	byTriple := make(map[tripleKey]*types.BP, len(bps))
	for i := range bps {
		bp := bps[i]
		byTriple[tripleKey{bp.Orderbook, bp.SellToken, bp.BuyToken}] = &bps[i]
	}

	opposing := make(map[tripleKey]*types.BP, len(bps))
	for i := range bps {
		bp := bps[i]
		mirror := tripleKey{bp.Orderbook, bp.BuyToken, bp.SellToken}
		if mirrorBP, ok := byTriple[mirror]; ok {
			opposing[tripleKey{bp.Orderbook, bp.SellToken, bp.BuyToken}] = mirrorBP
		}
	}
	return opposing
}

// shuffledEndpoint picks one RPC endpoint at random, distributing load
// across the configured list the way SPEC_FULL.md §5 describes "shuffled
// per round"; endpoint rotation itself is owned by the chain client's
// transport construction, an external collaborator here.
func (r *Runner) shuffledEndpoint() string {
	if len(r.rpcs) == 0 {
		return ""
	}
	return r.rpcs[rand.Intn(len(r.rpcs))]
}

// LastReports returns a copy of the most recently completed round's
// reports, in bundle-list order (SPEC_FULL.md §8 invariant 7).
func (r *Runner) LastReports() []types.PairReport {
	r.reportsMu.Lock()
	defer r.reportsMu.Unlock()
	return append([]types.PairReport(nil), r.lastReports...)
}
