package telemetry

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/redact"
)

const instrumentationName = "magika"

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider wires tracer/meter providers and exposes scan instruments.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter

	scansCounter      metric.Int64Counter
	scanErrors        metric.Int64Counter
	scanDuration      metric.Float64Histogram
	inferenceDuration metric.Float64Histogram
	bytesScanned      metric.Int64Counter

	shutdownTraceProvider func(context.Context) error
	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures OTLP exporters and providers. When disabled it
// returns no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		return newProvider(false, tracenoop.NewTracerProvider().Tracer(""), metricnoop.NewMeterProvider().Meter("")), nil
	}

	protocol := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	redact.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s", protocol, cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var (
		spanExp   sdktrace.SpanExporter
		metricExp sdkmetric.Exporter
	)
	switch protocol {
	case "", "grpc":
		if spanExp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure()); err != nil {
			return nil, err
		}
	case "http":
		if spanExp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()); err != nil {
			return nil, err
		}
		if metricExp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure()); err != nil {
			return nil, err
		}
	default:
		return nil, &UnsupportedProtocolError{Protocol: cfg.Protocol}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(spanExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetMeterProvider(mp)

	p := newProvider(true, tp.Tracer(instrumentationName), mp.Meter(instrumentationName))
	p.shutdownTraceProvider = tp.Shutdown
	p.shutdownMeterProvider = mp.Shutdown
	return p, nil
}

// UnsupportedProtocolError reports an OTLP protocol other than grpc or http.
type UnsupportedProtocolError struct {
	Protocol string
}

func (e *UnsupportedProtocolError) Error() string {
	return "telemetry: unsupported protocol " + e.Protocol
}

func newProvider(enabled bool, tracer trace.Tracer, meter metric.Meter) *Provider {
	p := &Provider{Enabled: enabled, tracer: tracer, meter: meter}
	p.initInstruments()
	return p
}

func (p *Provider) initInstruments() {
	// Instruments are best-effort; a failed registration leaves a no-op.
	p.scansCounter, _ = p.meter.Int64Counter("magika_scans_total")
	p.scanErrors, _ = p.meter.Int64Counter("magika_scan_errors_total")
	p.scanDuration, _ = p.meter.Float64Histogram("magika_scan_duration_ms")
	p.inferenceDuration, _ = p.meter.Float64Histogram("magika_inference_duration_ms")
	p.bytesScanned, _ = p.meter.Int64Counter("magika_bytes_scanned_total")
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return metricnoop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownTraceProvider != nil {
		_ = p.shutdownTraceProvider(ctx)
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// StartScan opens a span around one scan. attrs pass through SafeAttributes.
func (p *Provider) StartScan(ctx context.Context, attrs map[string]interface{}) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, "magika.scan", trace.WithAttributes(SafeAttributes(attrs)...))
}

// EndScan records the outcome on span and ends it.
func EndScan(span trace.Span, pred magika.Prediction, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, magika.ErrorKind(err))
	} else {
		span.SetAttributes(attribute.String("magika.label", pred.Label))
	}
	span.End()
}

// RecordScan emits counters and histograms for one scan.
func (p *Provider) RecordScan(ctx context.Context, pred magika.Prediction, size int64, dur time.Duration, err error) {
	if p == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err != nil {
		kind := attribute.String("magika.error_kind", magika.ErrorKind(err))
		p.scanErrors.Add(ctx, 1, metric.WithAttributes(kind))
		return
	}
	labels := metric.WithAttributes(attribute.String("magika.label", pred.Label))
	p.scansCounter.Add(ctx, 1, labels)
	p.scanDuration.Record(ctx, durationMillis(dur), labels)
	if size > 0 {
		p.bytesScanned.Add(ctx, size)
	}
}

// InstrumentInferencer times every Infer call of inf.
func (p *Provider) InstrumentInferencer(inf magika.Inferencer) magika.Inferencer {
	if p == nil || inf == nil {
		return inf
	}
	return magika.InferencerFunc(func(ctx context.Context, features []int32) ([]float32, error) {
		start := time.Now()
		scores, err := inf.Infer(ctx, features)
		p.inferenceDuration.Record(ctx, durationMillis(time.Since(start)))
		return scores, err
	})
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
