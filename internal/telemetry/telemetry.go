package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "tracelatency"

// Settings configures SetupInstrumentation.
type Settings struct {
	ServiceName string
	Level       slog.Level
	// Format is "text" or "json".
	Format string
	// OTLPEndpoint enables OTLP/HTTP export of traces, metrics and logs. The
	// exporters read the endpoint from OTEL_EXPORTER_OTLP_ENDPOINT.
	OTLPEndpoint string
	Output       io.Writer
}

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// SetupInstrumentation installs the process logger and, when an OTLP endpoint
// is configured, OpenTelemetry providers. The returned func flushes and shuts
// them down.
func SetupInstrumentation(ctx context.Context, s Settings) (func(context.Context) error, error) {
	out := s.Output
	if out == nil {
		out = os.Stderr
	}
	if s.ServiceName == "" {
		s.ServiceName = instrumentationName
	}
	hopts := &slog.HandlerOptions{Level: s.Level}
	var handler slog.Handler = slog.NewTextHandler(out, hopts)
	if s.Format == "json" {
		handler = slog.NewJSONHandler(out, hopts)
	}

	noop := func(context.Context) error { return nil }
	if s.OTLPEndpoint == "" {
		SetLogger(slog.New(handler))
		return noop, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", s.ServiceName))

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		SetLogger(slog.New(handler))
		return noop, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		SetLogger(slog.New(handler))
		return tp.Shutdown, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		SetLogger(slog.New(handler))
		return func(ctx context.Context) error {
			return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
		}, err
	}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)

	bridge := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(lp))
	SetLogger(slog.New(fanout{handlers: []slog.Handler{handler, bridge}}))

	return func(ctx context.Context) error {
		return errors.Join(lp.Shutdown(ctx), mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// GetLogger returns the process logger; it discards everything until
// SetupInstrumentation or SetLogger runs.
func GetLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func GetMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}
