package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Carrier is the W3C trace context persisted next to an outbox row so the
// publisher can continue the trace that wrote it.
type Carrier struct {
	Traceparent string
	Tracestate  string
}

func CarrierFrom(ctx context.Context) Carrier {
	m := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, m)
	return Carrier{Traceparent: m.Get("traceparent"), Tracestate: m.Get("tracestate")}
}

func (c Carrier) Empty() bool { return c.Traceparent == "" && c.Tracestate == "" }

// Restore returns ctx carrying the stored span context as remote parent.
func (c Carrier) Restore(ctx context.Context) context.Context {
	if c.Empty() {
		return ctx
	}
	m := propagation.MapCarrier{}
	m.Set("traceparent", c.Traceparent)
	if c.Tracestate != "" {
		m.Set("tracestate", c.Tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, m)
}
