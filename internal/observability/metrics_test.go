package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCollectorIsNoop(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		collector.RecordTurn(ctx, "committed", time.Second)
		collector.RecordStage(ctx, "planning", "ok", time.Millisecond)
		collector.RecordGeneration(ctx, "worldsim", "ok", time.Millisecond)
		collector.RecordRetry(ctx, "atmosphere")
		collector.RecordActorFailure(ctx, "aldric")
	})
}

func TestDisabledTracerStillProducesSpans(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)

	ctx, span := tp.StartStageSpan(context.Background(), "gating")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()

	assert.NoError(t, tp.Shutdown(context.Background()))
}
