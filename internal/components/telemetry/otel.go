package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"planharvest/internal/components/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultMetricInterval = 15 * time.Second

// Telemetry holds the providers installed by Setup, either may be nil when its signal is not
// configured.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.TracerProvider != nil {
		errs = append(errs, t.TracerProvider.Shutdown(ctx))
	}
	if t.MeterProvider != nil {
		errs = append(errs, t.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Exporter is where one signal is sent. An empty endpoint leaves the signal off.
type Exporter struct {
	Endpoint string `json:"endpoint"`
	// Protocol is "grpc" or "http", "http" when empty.
	Protocol string            `json:"protocol"`
	Headers  map[string]string `json:"headers"`
}

type Config struct {
	Traces  Exporter `json:"traces"`
	Metrics Exporter `json:"metrics"`
	// MetricIntervalSeconds is how often metrics are pushed.
	MetricIntervalSeconds int `json:"metric_interval_seconds"`
}

// SetupFromEnv looks for telemetry.json5 from the working directory upwards and sets up
// telemetry with it. It returns os.ErrNotExist when there is no such file.
func SetupFromEnv(ctx context.Context, serviceName string) (Telemetry, error) {
	config, err := configutil.ReadRecursively[Config]("telemetry.json5")
	if err != nil {
		return Telemetry{}, err
	}
	return Setup(ctx, serviceName, config)
}

// Setup installs a global provider for every configured signal.
func Setup(ctx context.Context, serviceName string, config Config) (Telemetry, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return Telemetry{}, err
	}

	var out Telemetry
	if config.Traces.Endpoint != "" {
		exporter, err := newSpanExporter(ctx, config.Traces)
		if err != nil {
			return Telemetry{}, fmt.Errorf("trace exporter: %w", err)
		}
		out.TracerProvider = trace.NewTracerProvider(
			trace.WithBatcher(exporter),
			trace.WithResource(r),
		)
		otel.SetTracerProvider(out.TracerProvider)
	}

	if config.Metrics.Endpoint != "" {
		exporter, err := newMetricExporter(ctx, config.Metrics)
		if err != nil {
			out.Shutdown(ctx)
			return Telemetry{}, fmt.Errorf("metric exporter: %w", err)
		}
		interval := defaultMetricInterval
		if config.MetricIntervalSeconds > 0 {
			interval = time.Duration(config.MetricIntervalSeconds) * time.Second
		}
		out.MeterProvider = metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
			metric.WithResource(r),
		)
		otel.SetMeterProvider(out.MeterProvider)
	}

	return out, nil
}

func newSpanExporter(ctx context.Context, e Exporter) (trace.SpanExporter, error) {
	switch e.Protocol {
	case "grpc":
		return otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(e.Endpoint),
			otlptracegrpc.WithHeaders(e.Headers),
		)
	case "", "http":
		return otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(e.Endpoint),
			otlptracehttp.WithHeaders(e.Headers),
		)
	}
	return nil, fmt.Errorf("unknown protocol %q", e.Protocol)
}

func newMetricExporter(ctx context.Context, e Exporter) (metric.Exporter, error) {
	switch e.Protocol {
	case "grpc":
		return otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(e.Endpoint),
			otlpmetricgrpc.WithHeaders(e.Headers),
		)
	case "", "http":
		return otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(e.Endpoint),
			otlpmetrichttp.WithHeaders(e.Headers),
		)
	}
	return nil, fmt.Errorf("unknown protocol %q", e.Protocol)
}
