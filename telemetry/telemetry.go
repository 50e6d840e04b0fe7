// Package telemetry traces and counts targeting operations.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tink3rlabs/targeting"

type Telemetry struct {
	Registry *prometheus.Registry
	tracer   trace.Tracer

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates the metrics of a service on a fresh registry and traces with tp.
func New(tp trace.TracerProvider) *Telemetry {
	t := &Telemetry{
		Registry: prometheus.NewRegistry(),
		tracer:   tp.Tracer(instrumentationName),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "targeting",
			Name:      "operations_total",
			Help:      "Targeting operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "targeting",
			Name:      "operation_duration_seconds",
			Help:      "Duration of targeting operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	t.Registry.MustRegister(
		t.operations,
		t.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return t
}

// NewTracerProvider returns an SDK tracer provider for serviceName. Spans go to the given
// processors; with none they are sampled but not exported.
func NewTracerProvider(serviceName string, processors ...sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// Start opens a span for operation. The returned func ends it, recording err on the span
// and in the operation metrics.
func (t *Telemetry) Start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		t.operations.WithLabelValues(operation, outcome).Inc()
		t.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{Registry: t.Registry})
}
