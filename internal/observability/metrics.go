// Package observability wires optional metrics and tracing around the turn
// pipeline. Everything here is nil-safe: a disabled collector records nothing
// and the engine never depends on it for correctness.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages all metrics for the turn engine.
type MetricsCollector struct {
	meter metric.Meter

	// Turn metrics
	turnsTotal    metric.Int64Counter
	turnLatency   metric.Float64Histogram
	stageLatency  metric.Float64Histogram
	actorFailures metric.Int64Counter

	// Generation metrics
	generations   metric.Int64Counter
	genLatency    metric.Float64Histogram
	retryAttempts metric.Int64Counter
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// NewMetricsCollector creates a metrics collector. When disabled, every
// Record method is a no-op.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("loom")

	turnsTotal, err := meter.Int64Counter(
		"loom.turns.total",
		metric.WithDescription("Total turns processed, by terminal state"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}

	turnLatency, err := meter.Float64Histogram(
		"loom.turn.latency",
		metric.WithDescription("End-to-end turn latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn latency histogram: %w", err)
	}

	stageLatency, err := meter.Float64Histogram(
		"loom.stage.latency",
		metric.WithDescription("Per-stage latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage latency histogram: %w", err)
	}

	actorFailures, err := meter.Int64Counter(
		"loom.actor.failures.total",
		metric.WithDescription("Actor generative calls that exhausted retries"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create actor failures counter: %w", err)
	}

	generations, err := meter.Int64Counter(
		"loom.generation.requests.total",
		metric.WithDescription("Generative calls issued, by stage and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generations counter: %w", err)
	}

	genLatency, err := meter.Float64Histogram(
		"loom.generation.latency",
		metric.WithDescription("Generative call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation latency histogram: %w", err)
	}

	retryAttempts, err := meter.Int64Counter(
		"loom.generation.retries.total",
		metric.WithDescription("Retry attempts beyond the first"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retries counter: %w", err)
	}

	return &MetricsCollector{
		meter:         meter,
		turnsTotal:    turnsTotal,
		turnLatency:   turnLatency,
		stageLatency:  stageLatency,
		actorFailures: actorFailures,
		generations:   generations,
		genLatency:    genLatency,
		retryAttempts: retryAttempts,
	}, nil
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsCollector) Handler() http.Handler {
	return promclient.Handler()
}

// RecordTurn records a completed turn and its terminal state
// (committed, rejected, failed).
func (m *MetricsCollector) RecordTurn(ctx context.Context, state string, latency time.Duration) {
	if m == nil || m.turnsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.turnsTotal.Add(ctx, 1, attrs)
	m.turnLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordStage records one pipeline stage execution.
func (m *MetricsCollector) RecordStage(ctx context.Context, stage string, status string, latency time.Duration) {
	if m == nil || m.stageLatency == nil {
		return
	}
	m.stageLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordGeneration records one generative call.
func (m *MetricsCollector) RecordGeneration(ctx context.Context, stage string, status string, latency time.Duration) {
	if m == nil || m.generations == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	)
	m.generations.Add(ctx, 1, attrs)
	m.genLatency.Record(ctx, latency.Seconds(), attrs)
}

// RecordRetry counts a retry attempt beyond the first.
func (m *MetricsCollector) RecordRetry(ctx context.Context, stage string) {
	if m == nil || m.retryAttempts == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordActorFailure counts an actor whose call exhausted retries.
func (m *MetricsCollector) RecordActorFailure(ctx context.Context, actorID string) {
	if m == nil || m.actorFailures == nil {
		return
	}
	m.actorFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("actor", actorID)))
}
