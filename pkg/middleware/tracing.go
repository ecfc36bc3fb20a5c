// pkg/middleware/tracing.go
package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// InitTracing installs an OTLP tracer provider when OTEL_EXPORTER_OTLP_(TRACES_)ENDPOINT
// is set. The returned shutdown flushes pending spans; it is a no-op otherwise.
func InitTracing(ctx context.Context, service string, log *zap.SugaredLogger) (shutdown func(context.Context) error, enabled bool) {
	noop := func(context.Context) error { return nil }
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return noop, false
	}
	opts := []otlptracehttp.Option{}
	if strings.HasPrefix(strings.ToLower(endpoint), "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		log.Warnw("tracing exporter init failed, tracing disabled", "err", err)
		return noop, false
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		log.Warnw("tracing resource init failed, tracing disabled", "err", err)
		return noop, false
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	log.Infow("tracing enabled", "endpoint", endpoint)
	return tp.Shutdown, true
}

// Tracing wraps handlers with otelhttp when enabled, otherwise it passes through.
func Tracing(enabled bool, operation string) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, operation) }
}
