package handlers

import (
	"net/http"

	"skirmish/pkg/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// TracingMiddleware creates HTTP tracing middleware using OpenTelemetry
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	// If telemetry is disabled, return a no-op middleware
	if !config.GetBoolEnv("ENABLE_TELEMETRY", true) {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return otelhttp.NewMiddleware(
		serviceName,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	)
}