package http

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/freekieb7/biu/http"

type instruments struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	registration metric.Registration
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator, poolStats func() PoolStats) (*instruments, error) {
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("The number of answered requests by method and status"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Time from accepting a connection to closing it"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	busy, err := meter.Int64ObservableGauge("biu.pool.busy",
		metric.WithDescription("Workers currently serving a connection"),
		metric.WithUnit("{worker}"))
	if err != nil {
		return nil, err
	}

	queued, err := meter.Int64ObservableGauge("biu.pool.queued",
		metric.WithDescription("Connections waiting for a worker"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return nil, err
	}

	registration, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		stats := poolStats()
		o.ObserveInt64(busy, int64(stats.Busy))
		o.ObserveInt64(queued, int64(stats.Queued))
		return nil
	}, busy, queued)
	if err != nil {
		return nil, err
	}

	return &instruments{
		tracer:       tp.Tracer(instrumentationName),
		propagator:   prop,
		requests:     requests,
		duration:     duration,
		registration: registration,
	}, nil
}

func (inst *instruments) record(ctx context.Context, method string, status uint16, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.Int("http.response.status_code", int(status)),
	)
	inst.requests.Add(ctx, 1, attrs)
	inst.duration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (inst *instruments) close() error {
	return inst.registration.Unregister()
}

var _ propagation.TextMapCarrier = Headers{}
