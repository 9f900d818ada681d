package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config controls the OTLP pipeline. Exporter endpoints and headers come
// from the standard OTEL_EXPORTER_OTLP_* environment variables.
type Config struct {
	ServiceName string
	Version     string

	// SampleRatio is the fraction of root spans kept. 0 defaults to 1.
	SampleRatio float64

	// MetricInterval is the export period. 0 defaults to 10s.
	MetricInterval time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "governor"
	}
	if c.SampleRatio <= 0 {
		c.SampleRatio = 1
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = 10 * time.Second
	}
}

// ShutdownFunc flushes and stops the providers.
type ShutdownFunc func(context.Context) error

// InitTelemetry installs global OTLP trace and meter providers.
// A provider that fails to start is logged and skipped so the service
// still runs without it.
func InitTelemetry(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	cfg.ApplyDefaults()

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	traceShutdown, err := initTraceProvider(ctx, res, cfg.SampleRatio)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize trace provider, continuing without tracing")
		traceShutdown = noopShutdown
	}

	metricShutdown, err := initMeterProvider(ctx, res, cfg.MetricInterval)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize meter provider, continuing without metrics")
		metricShutdown = noopShutdown
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Float64("sample_ratio", cfg.SampleRatio).
		Msg("OpenTelemetry initialized")

	return func(ctx context.Context) error {
		var errs []error
		if err := traceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}
		if err := metricShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}
		return errors.Join(errs...)
	}, nil
}

func noopShutdown(context.Context) error { return nil }

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
		resource.WithFromEnv(), // OTEL_RESOURCE_ATTRIBUTES and OTEL_SERVICE_NAME
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithOSType(),
		resource.WithContainer(),
	)
	if errors.Is(err, resource.ErrPartialResource) {
		// some detectors fail outside containers or without a passwd entry
		log.Debug().Err(err).Msg("Partial telemetry resource")
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func initTraceProvider(ctx context.Context, res *resource.Resource, ratio float64) (ShutdownFunc, error) {
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func initMeterProvider(ctx context.Context, res *resource.Resource, interval time.Duration) (ShutdownFunc, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval)),
		),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
