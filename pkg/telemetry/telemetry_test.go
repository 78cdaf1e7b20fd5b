package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}

func TestSetup_RequiresEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), Config{Enabled: true})
	assert.ErrorIs(t, err, ErrMissingEndpoint)
}

func TestAttributes(t *testing.T) {
	attrs := attributes(Config{
		ServiceName:    "webauth",
		ServiceVersion: "1.0.0",
		Namespace:      "smallbiznis",
		Environment:    "development",
	})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("service.name", "webauth"),
		attribute.String("service.version", "1.0.0"),
		attribute.String("service.namespace", "smallbiznis"),
		attribute.String("deployment.environment", "development"),
	}, attrs)

	assert.Len(t, attributes(Config{ServiceName: "webauth"}), 1)
}
