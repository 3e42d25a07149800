package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/gsantopaolo/sentinel-AI/internal/event"
)

// newTracedSubscriber builds a subscriber whose spans land in the given
// in-memory exporter. Acks on unbound messages fail and are only logged,
// which is all these tests need.
func newTracedSubscriber(t *testing.T, exp *tracetest.InMemoryExporter) *Subscriber {
	t.Helper()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &Subscriber{
		cfg:    SubscriberConfig{Stream: "raw-events-stream", Subject: "raw.events"},
		log:    zaptest.NewLogger(t),
		tracer: tp.Tracer("raw-events-stream-consumer"),
	}
}

func TestDispatchTracesEachMessage(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	s := newTracedSubscriber(t, exp)

	msg := nats.NewMsg("raw.events")
	msg.Header.Set(event.HeaderMessageType, "RawEvent")
	msg.Header.Set(event.HeaderEventID, "evt-1")

	var handlerSpanValid bool
	s.dispatch(context.Background(), msg, func(ctx context.Context, _ *nats.Msg) error {
		handlerSpanValid = trace.SpanContextFromContext(ctx).IsValid()
		return nil
	})

	assert.True(t, handlerSpanValid, "handler should run inside the consumer span")

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "consume raw.events", spans[0].Name)
	assert.Equal(t, trace.SpanKindConsumer, spans[0].SpanKind)

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value.AsString()
	}
	assert.Equal(t, "raw.events", attrs["messaging.subject"])
	assert.Equal(t, "RawEvent", attrs["messaging.message_type"])
	assert.Equal(t, "evt-1", attrs["event.id"])
}

func TestDispatchRecordsHandlerError(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	s := newTracedSubscriber(t, exp)

	s.dispatch(context.Background(), nats.NewMsg("raw.events"), func(context.Context, *nats.Msg) error {
		return errors.New("store unavailable")
	})

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "store unavailable", spans[0].Status.Description)
	require.NotEmpty(t, spans[0].Events)
}

func TestDispatchRecordsDrop(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	s := newTracedSubscriber(t, exp)

	s.dispatch(context.Background(), nats.NewMsg("raw.events"), func(context.Context, *nats.Msg) error {
		return Dropf("malformed payload")
	})

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "malformed payload", spans[0].Status.Description)
}
