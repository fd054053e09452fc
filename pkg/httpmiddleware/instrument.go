package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry supplies the otel providers used for HTTP instrumentation.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces each request and records otelhttp server metrics. Spans
// are named after the matched route and carry the http.route attribute.
func Instrument(service string, find RouteFinder, t Telemetry) Middleware {
	spanName := func(_ string, r *http.Request) string {
		if route := find(r); route != "" {
			return route
		}
		return r.Method + " " + r.URL.Path
	}
	return func(next http.Handler) http.Handler {
		labeled := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if route := find(r); route != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(semconv.HTTPRoute(route))
				if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
					l.Add(semconv.HTTPRoute(route))
				}
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(labeled, service,
			otelhttp.WithTracerProvider(t.TracerProvider()),
			otelhttp.WithMeterProvider(t.MeterProvider()),
			otelhttp.WithSpanNameFormatter(spanName),
		)
	}
}
