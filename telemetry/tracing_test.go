package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceSettingsFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")

	s := traceSettingsFromEnv()
	assert.Equal(t, "collector:4317", s.Endpoint)
	assert.False(t, s.Insecure)
	assert.Equal(t, 1.0, s.SampleRatio)

	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "")
	s = traceSettingsFromEnv()
	assert.True(t, s.Insecure)
	assert.Equal(t, 0.25, s.SampleRatio)
	assert.Contains(t, s.sampler().Description(), "TraceIDRatioBased")
}

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("test", "0")
	require.NoError(t, err)
	shutdown()
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx := WithCorrelation(context.Background(), "corr-1")

	_, span := tp.Tracer(TracerName).Start(ctx, "ok")
	RecordError(span, nil)
	SetSpanHTTPStatus(span, 201)
	span.End()

	_, span = tp.Tracer(TracerName).Start(ctx, "fail")
	RecordError(span, errors.New("boom"))
	span.End()

	_, span = tp.Tracer(TracerName).Start(ctx, "5xx")
	SetSpanHTTPStatus(span, 502)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "boom", ended[1].Status().Description)
	assert.Equal(t, codes.Error, ended[2].Status().Code)
	assert.Len(t, HTTPAttrs("GET", "/streams/{id}"), 2)
}
