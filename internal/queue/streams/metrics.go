package streams

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	streamMetricsOnce sync.Once
	eventsPublished   otelmetric.Int64Counter
	eventsConsumed    otelmetric.Int64Counter
)

func initStreamMetrics() {
	meter := otel.Meter("researchhive/queue/streams")
	var err error
	eventsPublished, err = meter.Int64Counter(
		"research_events_published_total",
		otelmetric.WithDescription("Envelopes appended to research streams"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: research_events_published_total: %v", err)
	}
	eventsConsumed, err = meter.Int64Counter(
		"research_events_consumed_total",
		otelmetric.WithDescription("Envelopes decoded from research streams"),
	)
	if err != nil {
		log.Printf("queue streams metrics init: research_events_consumed_total: %v", err)
	}
}

func recordPublished(ctx context.Context, eventType string) {
	streamMetricsOnce.Do(initStreamMetrics)
	if eventsPublished == nil {
		return
	}
	eventsPublished.Add(contextOrBackground(ctx), 1,
		otelmetric.WithAttributes(attribute.String("event_type", eventType)))
}

func recordConsumed(ctx context.Context, eventType string) {
	streamMetricsOnce.Do(initStreamMetrics)
	if eventsConsumed == nil {
		return
	}
	eventsConsumed.Add(contextOrBackground(ctx), 1,
		otelmetric.WithAttributes(attribute.String("event_type", eventType)))
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
