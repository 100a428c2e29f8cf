package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "fraudproof"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestTracerProviderExports(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "fraudproof", Network: "mainnet", SampleRatio: 1}, exp)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "ProcessTask")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "ProcessTask", spans[0].Name)
	require.Contains(t, spans[0].Resource.Attributes(), attribute.String("fraudproof.network", "mainnet"))
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestSamplerNever(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "fraudproof", SampleRatio: 0}, exp)
	require.NoError(t, err)
	_, span := tp.Tracer("test").Start(context.Background(), "dropped")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))
	require.Empty(t, exp.GetSpans())
}
