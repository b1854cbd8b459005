package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for simulation runs.
var (
	tracer = otel.Tracer("orbit.engine")
	meter  = otel.Meter("orbit.engine")
)

// Metrics for simulation runs.
var (
	simulateLatency metric.Float64Histogram
	tasksTotal      metric.Int64Counter
	pointsTotal     metric.Int64Counter
	failuresTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		simulateLatency, err = meter.Float64Histogram(
			"orbit_simulate_duration_seconds",
			metric.WithDescription("Wall-clock duration of simulation runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tasksTotal, err = meter.Int64Counter(
			"orbit_tasks_total",
			metric.WithDescription("Tasks that reached a terminal status, by status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pointsTotal, err = meter.Int64Counter(
			"orbit_points_committed_total",
			metric.WithDescription("Timeline points committed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		failuresTotal, err = meter.Int64Counter(
			"orbit_failures_total",
			metric.WithDescription("Structured failures reported in results, by code"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startSimulateSpan creates a span for one simulation run.
func startSimulateSpan(ctx context.Context, model string, directives int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Engine.Simulate",
		trace.WithAttributes(
			attribute.String("orbit.model", model),
			attribute.Int("orbit.directives", directives),
		),
	)
}

// setSimulateSpanResult records the outcome on a simulation span.
func setSimulateSpanResult(span trace.Span, r *Results, err error) {
	if r != nil {
		span.SetAttributes(
			attribute.String("orbit.run_id", r.RunID),
			attribute.Int("orbit.points", r.Points),
			attribute.Int("orbit.failures", len(r.Failures)),
		)
	}
	span.SetAttributes(attribute.Bool("orbit.success", err == nil))
	if err != nil {
		span.RecordError(err)
	}
}

func recordSimulateMetrics(ctx context.Context, elapsed time.Duration, model string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	simulateLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("success", success),
	))
}

func recordTask(ctx context.Context, status TaskStatus) {
	if err := initMetrics(); err != nil {
		return
	}
	tasksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
}

func recordPoint(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	pointsTotal.Add(ctx, 1)
}

func recordFailure(ctx context.Context, code RuntimeErrorCode) {
	if err := initMetrics(); err != nil {
		return
	}
	failuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
}
