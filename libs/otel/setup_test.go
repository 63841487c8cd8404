package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_PERCENT", "25")
	cfg := ConfigFromEnv("clinic-service")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 0.25, cfg.SampleRatio)
	assert.Equal(t, "clinic-service", cfg.ServiceName)

	t.Setenv("OTEL_SAMPLING_PERCENT", "400")
	assert.Equal(t, 1.0, ConfigFromEnv("x").SampleRatio)
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestCarrierRestoresRemoteParent(t *testing.T) {
	_, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.True(t, CarrierFrom(context.Background()).Empty())
	ctx := context.Background()
	assert.Equal(t, ctx, Carrier{}.Restore(ctx))

	c := Carrier{Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	sc := trace.SpanContextFromContext(c.Restore(ctx))
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.Equal(t, c, CarrierFrom(trace.ContextWithRemoteSpanContext(ctx, sc)))
}
