package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestHeaderCarrier_GetSetKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "content-type", Value: []byte("application/json")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "application/json", c.Get("content-type"))
	assert.Empty(t, c.Get("traceparent"))

	c.Set("traceparent", traceparent)
	c.Set("content-type", "text/plain")

	assert.Equal(t, []string{"content-type", "traceparent"}, c.Keys())
	assert.Equal(t, "text/plain", string(headers[0].Value))
	assert.Equal(t, traceparent, string(headers[1].Value))
}

func TestHeaderCarrier_Empty(t *testing.T) {
	var headers []kafka.Header
	c := NewHeaderCarrier(&headers)
	assert.Empty(t, c.Keys())
	assert.Empty(t, c.Get("anything"))
}

func TestExtractTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	msg := kafka.Message{Headers: []kafka.Header{{Key: "traceparent", Value: []byte(traceparent)}}}
	sc := trace.SpanContextFromContext(extractTraceContext(context.Background(), &msg))
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", sc.SpanID().String())

	bare := kafka.Message{}
	assert.False(t, trace.SpanContextFromContext(extractTraceContext(context.Background(), &bare)).IsValid())
}
