package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init("test", nil)
	require.NoError(t, err)

	_, span := Start(context.Background(), "noop")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init("test", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Init("test", nil) })

	_, span := Start(context.Background(), "runner.execute", attribute.String("command", "ip route"))
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "runner.execute")
	assert.Contains(t, buf.String(), "ip route")
}
