package queueworker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/infigaming-com/go-queueworker"

type workerMetrics struct {
	fetches         metric.Int64Counter
	processed       metric.Int64Counter
	duplicates      metric.Int64Counter
	retries         metric.Int64Counter
	retriesExceeded metric.Int64Counter
	gcFlushes       metric.Int64Counter
}

func newWorkerMetrics(meter metric.Meter) (*workerMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &workerMetrics{}
	var err error
	if m.fetches, err = meter.Int64Counter("queueworker.fetches",
		metric.WithDescription("Fetch iterations, whether or not a message was received")); err != nil {
		return nil, err
	}
	if m.processed, err = meter.Int64Counter("queueworker.processed",
		metric.WithDescription("Messages dispatched to the handler")); err != nil {
		return nil, err
	}
	if m.duplicates, err = meter.Int64Counter("queueworker.duplicates",
		metric.WithDescription("Messages dropped by nonce deduplication")); err != nil {
		return nil, err
	}
	if m.retries, err = meter.Int64Counter("queueworker.retries",
		metric.WithDescription("Messages rescheduled for retry")); err != nil {
		return nil, err
	}
	if m.retriesExceeded, err = meter.Int64Counter("queueworker.retries_exceeded",
		metric.WithDescription("Messages terminally rejected after exhausting retries")); err != nil {
		return nil, err
	}
	if m.gcFlushes, err = meter.Int64Counter("queueworker.gc_flushes",
		metric.WithDescription("Forced garbage collections triggered by the consumer loop")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *workerMetrics) add(ctx context.Context, counter metric.Int64Counter, queue string) {
	if m == nil || counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}
