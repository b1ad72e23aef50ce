package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vzahanych/area-insight/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tele, err := New(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, tele.IsEnabled())
	assert.NotNil(t, tele.GetTracer())

	ctx, span := tele.StartSpan(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()

	tele.RecordError(ctx, errors.New("ignored"), nil)
	assert.NoError(t, tele.Shutdown(context.Background()))
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tele *Telemetry

	assert.False(t, tele.IsEnabled())
	_, span := tele.StartSpan(context.Background(), "nil")
	span.End()
	tele.RecordError(context.Background(), errors.New("ignored"), nil)
	assert.NoError(t, tele.Shutdown(context.Background()))
}
