package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ExporterConfig selects where spans and metrics go. The stdout exporters
// are the only ones wired so far — enough to make every span and
// instrument New registers actually leave the process, without pulling in
// a collector dependency the rest of the pack never demonstrates wiring
// for.
type ExporterConfig struct {
	// PrettyPrint renders stdout JSON with indentation, useful for local
	// runs; disabled by default so a production log stream stays one
	// line per record.
	PrettyPrint bool
}

// Shutdown flushes and stops the registered providers. Callers should
// invoke it once during process shutdown, after the round runner has
// stopped producing spans and metrics.
type Shutdown func(ctx context.Context) error

// InitProvider builds the SDK tracer and meter providers backing the
// package-level otel.Tracer/otel.Meter calls New relies on, and registers
// them as the global providers. Without this, New still works — the OTEL
// API degrades to its no-op implementation — but nothing is ever
// exported. Failures here are logged and degrade to no-op rather than
// failing startup, matching New's own "errors logged, not fatal" rule for
// optional observability.
func InitProvider(ctx context.Context, cfg ExporterConfig, logger *slog.Logger) Shutdown {
	log := logger.With("component", "telemetry")

	traceOpts := []stdouttrace.Option{}
	if cfg.PrettyPrint {
		traceOpts = append(traceOpts, stdouttrace.WithPrettyPrint())
	}
	traceExporter, err := stdouttrace.New(traceOpts...)
	if err != nil {
		log.Error("failed to build trace exporter, tracing disabled", "error", err)
		return noopShutdown
	}

	metricOpts := []stdoutmetric.Option{}
	if cfg.PrettyPrint {
		metricOpts = append(metricOpts, stdoutmetric.WithPrettyPrint())
	}
	metricExporter, err := stdoutmetric.New(metricOpts...)
	if err != nil {
		log.Error("failed to build metric exporter, metrics disabled", "error", err)
		return noopShutdown
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return meterProvider.Shutdown(ctx)
	}
}

func noopShutdown(ctx context.Context) error { return nil }
