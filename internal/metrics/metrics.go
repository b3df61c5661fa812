// Package metrics records per-route HTTP request metrics with OpenTelemetry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	RequestsCounterName   = "http.server.requests"
	DurationHistogramName = "http.server.duration"

	routeKey      = attribute.Key("http.route")
	methodKey     = attribute.Key("http.method")
	statusCodeKey = attribute.Key("http.status_code")

	unmatchedRoute = "unmatched"
)

// HTTPMetrics owns the meter provider and the request instruments.
type HTTPMetrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates the metrics with a manual reader, so totals can be collected on demand.
func New(ctx context.Context, serviceName, serviceVersion string) (*HTTPMetrics, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	meter := provider.Meter("userapi/http")

	requests, err := meter.Int64Counter(RequestsCounterName,
		metric.WithDescription("Total number of handled HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(DurationHistogramName,
		metric.WithDescription("HTTP request handling duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		provider: provider,
		reader:   reader,
		requests: requests,
		duration: duration,
	}, nil
}

// Middleware records one request and its duration, labelled by the chi route pattern.
func (m *HTTPMetrics) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		h.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		attrs := metric.WithAttributes(
			routeKey.String(route),
			methodKey.String(r.Method),
			statusCodeKey.Int(status),
		)
		m.requests.Add(r.Context(), 1, attrs)
		m.duration.Record(r.Context(), time.Since(start).Seconds(), attrs)
	})
}

// RequestTotals collects the request counter and sums it per route.
func (m *HTTPMetrics) RequestTotals(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, collected := range scope.Metrics {
			if collected.Name != RequestsCounterName {
				continue
			}
			sum, ok := collected.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				route, _ := point.Attributes.Value(routeKey)
				totals[route.AsString()] += point.Value
			}
		}
	}

	return totals, nil
}

// Shutdown flushes and stops the meter provider.
func (m *HTTPMetrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
