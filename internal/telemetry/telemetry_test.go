package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	p, err := Init(context.Background(), Config{})
	require.NoError(t, err)

	_, span := p.TracerProvider.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{
		Enabled:     true,
		ServiceName: "mise-test",
		Version:     "v0.0.0",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := p.TracerProvider.Tracer("test").Start(context.Background(), "list recipes")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	counter, err := p.MeterProvider.Meter("test").Int64Counter("mise.test.requests")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	require.NoError(t, p.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "list recipes")
	assert.Contains(t, out, "mise-test")
	assert.Contains(t, out, "mise.test.requests")

	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")
}
