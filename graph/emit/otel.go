package emit

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter bridges pipeline events to OpenTelemetry spans.
//
// Each event becomes a short-lived span named after the event message,
// carrying run ID, step and node ID as attributes. Wire the provider's
// exporter (stdout, OTLP, Jaeger) outside this package.
//
// Example:
//
//	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	emitter := emit.NewOTelEmitter(provider)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter backed by the given tracer provider.
func NewOTelEmitter(provider trace.TracerProvider) *OTelEmitter {
	return &OTelEmitter{
		tracer: provider.Tracer("github.com/flowbrg/homer/graph"),
	}
}

// Emit records the event as a span.
func (o *OTelEmitter) Emit(event Event) {
	attrs := []attribute.KeyValue{
		attribute.String("homer.run_id", event.RunID),
		attribute.Int("homer.step", event.Step),
		attribute.String("homer.node_id", event.NodeID),
	}

	for k, v := range event.Meta {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String("homer.meta."+k, val))
		case int:
			attrs = append(attrs, attribute.Int("homer.meta."+k, val))
		case int64:
			attrs = append(attrs, attribute.Int64("homer.meta."+k, val))
		case float64:
			attrs = append(attrs, attribute.Float64("homer.meta."+k, val))
		case bool:
			attrs = append(attrs, attribute.Bool("homer.meta."+k, val))
		}
	}

	name := event.Msg
	if name == "" {
		name = "pipeline event"
	}

	_, span := o.tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))
	span.End()
}
