// Package telemetry emits OTEL spans and metrics for every pair report and
// optionally pushes the same reports to a local dashboard over
// gorilla/websocket. The tracer/meter naming and per-opportunity
// span-with-attributes shape is grounded on fd1az-arbitrage-bot's
// business/arbitrage/app/detector.go (tracerName/meterName consts,
// a metrics struct of named instruments, one span per analyzed unit of
// work with details.* attributes). The dashboard push (Hub/Client) is
// adapted from the teacher's internal/api package, kept close to verbatim
// since a read-only WebSocket fan-out is domain agnostic.
package telemetry

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"polymarket-mm/pkg/types"
)

const (
	tracerName = "polymarket-mm/internal/pair"
	meterName  = "polymarket-mm/internal/pair"
)

// pairMetrics holds the OTEL metric instruments recorded once per pair report.
type pairMetrics struct {
	pairsProcessed     metric.Int64Counter
	opportunitiesFound metric.Int64Counter
	netProfitToken     metric.Float64Histogram
	gasCostToken       metric.Float64Histogram
	processingLatency  metric.Float64Histogram
}

// Telemetry emits a span and a set of metrics for every pair report the
// round runner produces.
type Telemetry struct {
	tracer  trace.Tracer
	metrics *pairMetrics
	logger  *slog.Logger
}

// New constructs a Telemetry instance. Metric instrument registration
// failures are logged but never fail startup, matching the teacher's
// "errors logged, not fatal" pattern for optional observability.
func New(logger *slog.Logger) *Telemetry {
	t := &Telemetry{
		tracer: otel.Tracer(tracerName),
		logger: logger.With("component", "telemetry"),
	}
	if err := t.initMetrics(); err != nil {
		t.logger.Error("failed to initialize telemetry metrics", "error", err)
	}
	return t
}

func (t *Telemetry) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	t.metrics = &pairMetrics{}

	t.metrics.pairsProcessed, err = meter.Int64Counter(
		"arb_pairs_processed_total",
		metric.WithDescription("Total number of pairs processed across all rounds"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return err
	}

	t.metrics.opportunitiesFound, err = meter.Int64Counter(
		"arb_opportunities_found_total",
		metric.WithDescription("Total number of pairs that cleared a profitable trade"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	t.metrics.netProfitToken, err = meter.Float64Histogram(
		"arb_net_profit_buy_token",
		metric.WithDescription("Net profit per cleared pair, in buy-token units"),
		metric.WithExplicitBucketBoundaries(-10, -1, -0.1, 0, 0.1, 1, 10, 100),
	)
	if err != nil {
		return err
	}

	t.metrics.gasCostToken, err = meter.Float64Histogram(
		"arb_gas_cost_buy_token",
		metric.WithDescription("Gas cost per submitted transaction, in buy-token units"),
		metric.WithExplicitBucketBoundaries(0, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return err
	}

	t.metrics.processingLatency, err = meter.Float64Histogram(
		"arb_pair_processing_latency_ms",
		metric.WithDescription("Wall-clock time to process one pair"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	return err
}

// RecordPair opens a span for report and records its outcome as metrics.
// duration is the wall-clock time the round runner spent in
// pair.Processor.Process for this report; Telemetry itself never calls
// Process, so it can't time it.
func (t *Telemetry) RecordPair(ctx context.Context, report types.PairReport, duration time.Duration) {
	_, span := t.tracer.Start(ctx, "processPair",
		trace.WithAttributes(
			attribute.String("details.token_pair", report.TokenPair),
			attribute.String("details.status", report.Status.String()),
			attribute.String("details.halt_reason", report.HaltReason.String()),
		),
	)
	defer span.End()

	if report.TxURL != "" {
		span.SetAttributes(attribute.String("details.tx_url", report.TxURL))
	}
	if report.Err != nil {
		span.SetAttributes(
			attribute.String("details.error_message", report.Err.Message),
			attribute.String("details.error_name", report.Err.Name),
		)
	}

	netProfit := toFloat(report.NetProfit)
	gasCost := toFloat(report.GasCost)
	span.SetAttributes(
		attribute.Float64("details.net_profit", netProfit),
		attribute.Float64("details.gas_cost", gasCost),
	)

	if t.metrics == nil {
		return
	}

	metricAttrs := metric.WithAttributes(
		attribute.String("pair", report.TokenPair),
		attribute.String("status", report.Status.String()),
	)

	t.metrics.pairsProcessed.Add(ctx, 1, metricAttrs)
	if report.Status == types.StatusFoundOpportunity {
		t.metrics.opportunitiesFound.Add(ctx, 1, metricAttrs)
	}
	t.metrics.netProfitToken.Record(ctx, netProfit, metricAttrs)
	t.metrics.gasCostToken.Record(ctx, gasCost, metricAttrs)
	t.metrics.processingLatency.Record(ctx, float64(duration.Microseconds())/1000.0, metricAttrs)
}

// toFloat converts an 18-decimal fixed-point amount to a float for metric
// recording only; core clearing math never uses float64 (see pkg/types).
func toFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(x), new(big.Float).SetInt(types.Scale18))
	v, _ := f.Float64()
	return v
}
