package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("catalog-search"))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
}

func TestInitTracer_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := DefaultConfig("catalog-search")
	cfg.Enabled = true
	cfg.Environment = "test"
	// Export is batched, so an unroutable endpoint still initializes.
	cfg.OTLPEndpoint = "127.0.0.1:0"

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	if err := shutdown(context.Background()); err != nil {
		t.Logf("shutdown with unreachable endpoint: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{rate: -1, want: "AlwaysOffSampler"},
		{rate: 0, want: "AlwaysOffSampler"},
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 2, want: "AlwaysOnSampler"},
		{rate: 0.5, want: "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		assert.Contains(t, Sampler(tt.rate).Description(), tt.want)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("catalog-search")

	assert.Equal(t, "catalog-search", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
	assert.True(t, cfg.Insecure)
}

func TestStartAndEnd(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := Start(context.Background(), "search.execute", attribute.String("doc_type", "product"))
	End(ok, nil)
	_, failed := Start(context.Background(), "index.save")
	End(failed, errors.New("bulk rejected"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "search.execute", spans[0].Name())
	assert.Equal(t, InstrumentationName, spans[0].InstrumentationScope().Name)
	assert.Contains(t, spans[0].Attributes(), attribute.String("doc_type", "product"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "bulk rejected", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}
