package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attr is a metric label, aliasing attribute.KeyValue so callers in the
// streaming core don't need to import otel's attribute package directly.
type Attr = attribute.KeyValue

// String builds a string-valued Attr.
func String(key, value string) Attr { return attribute.String(key, value) }

// Counter is the minimal instrument the streaming core depends on: a
// monotonic increment with optional labels. Concrete metric backends
// satisfy it without the core importing otel types anywhere outside this
// package.
type Counter interface {
	Inc(ctx context.Context, name string, n int64, attrs ...Attr)
}

// NoopCounter discards every increment. It is the default when no
// Provider has been wired, so instrumentation calls are always safe to
// make unconditionally.
type NoopCounter struct{}

func (NoopCounter) Inc(context.Context, string, int64, ...Attr) {}

// meterCounter is the otel-backed Counter implementation. Instruments are
// created lazily per name and cached, since the streaming core calls Inc
// with a small, fixed set of metric names (rx, tx, retry, backpressure,
// liveness) discovered at first use rather than registered up front.
type meterCounter struct {
	meter      metric.Meter
	instrument map[string]metric.Int64Counter
}

// NewCounter wraps a Provider's meter as a Counter. If provider is nil the
// returned Counter is a NoopCounter.
func NewCounter(provider *Provider, meterName string) Counter {
	if provider == nil {
		return NoopCounter{}
	}
	return &meterCounter{
		meter:      provider.Meter(meterName),
		instrument: make(map[string]metric.Int64Counter),
	}
}

func (c *meterCounter) Inc(ctx context.Context, name string, n int64, attrs ...Attr) {
	inst, ok := c.instrument[name]
	if !ok {
		var err error
		inst, err = c.meter.Int64Counter(name, metric.WithUnit("{event}"))
		if err != nil {
			return
		}
		c.instrument[name] = inst
	}
	inst.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Metric names the streaming core increments. Kept as constants so every
// call site and every dashboard query agree on spelling.
const (
	MetricRxMessages     = "krakenstream.connection.rx_messages"
	MetricTxMessages     = "krakenstream.connection.tx_messages"
	MetricHeartbeats     = "krakenstream.connection.heartbeats"
	MetricRetryImmediate = "krakenstream.connection.retry_immediate"
	MetricRetryScheduled = "krakenstream.connection.retry_scheduled"
	MetricBackpressure   = "krakenstream.transport.backpressure"
	MetricLivenessEvent  = "krakenstream.connection.liveness_event"
	MetricRejections     = "krakenstream.channel.rejections"
)
