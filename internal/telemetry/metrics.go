package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/governor"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Action lifecycle metrics
	ActionsRequestedTotal       metric.Int64Counter
	ActionsBlockedTotal         metric.Int64Counter
	ActionTransitionsTotal      metric.Int64Counter
	ActionExecutionErrorsTotal  metric.Int64Counter
	ActionTransitionConflicts   metric.Int64Counter
	ActionRequestDuration       metric.Float64Histogram
	PendingPayloadDecodeFailure metric.Int64Counter

	// Access policy metrics
	AccessDeniedTotal   metric.Int64Counter
	AccessFailOpenTotal metric.Int64Counter

	// Usage metrics
	UsageIncrementsTotal metric.Int64Counter
	TokensTrackedTotal   metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Action lifecycle metrics
	m.ActionsRequestedTotal, _ = meter.Int64Counter(
		"governor.actions.requested.total",
		metric.WithDescription("Total number of AI action requests"),
		metric.WithUnit("{action}"),
	)

	m.ActionsBlockedTotal, _ = meter.Int64Counter(
		"governor.actions.blocked.total",
		metric.WithDescription("Total number of AI action requests refused by a gate"),
		metric.WithUnit("{action}"),
	)

	m.ActionTransitionsTotal, _ = meter.Int64Counter(
		"governor.actions.transitions.total",
		metric.WithDescription("Total number of action status transitions"),
		metric.WithUnit("{transition}"),
	)

	m.ActionExecutionErrorsTotal, _ = meter.Int64Counter(
		"governor.actions.execution.errors.total",
		metric.WithDescription("Total number of failed action executions"),
		metric.WithUnit("{error}"),
	)

	m.ActionTransitionConflicts, _ = meter.Int64Counter(
		"governor.actions.transition_conflicts.total",
		metric.WithDescription("Total number of conditional updates that matched no row"),
		metric.WithUnit("{conflict}"),
	)

	m.ActionRequestDuration, _ = meter.Float64Histogram(
		"governor.actions.request.duration",
		metric.WithDescription("Duration of the gate pipeline for an action request"),
		metric.WithUnit("ms"),
	)

	m.PendingPayloadDecodeFailure, _ = meter.Int64Counter(
		"governor.actions.payload_decode_failures.total",
		metric.WithDescription("Total number of stored payloads that failed to decode"),
		metric.WithUnit("{action}"),
	)

	// Access policy metrics
	m.AccessDeniedTotal, _ = meter.Int64Counter(
		"governor.access.denied.total",
		metric.WithDescription("Total number of access checks that were denied"),
		metric.WithUnit("{check}"),
	)

	m.AccessFailOpenTotal, _ = meter.Int64Counter(
		"governor.access.failopen.total",
		metric.WithDescription("Total number of access checks allowed because of an internal error"),
		metric.WithUnit("{check}"),
	)

	// Usage metrics
	m.UsageIncrementsTotal, _ = meter.Int64Counter(
		"governor.usage.increments.total",
		metric.WithDescription("Total number of usage counter increments"),
		metric.WithUnit("{increment}"),
	)

	m.TokensTrackedTotal, _ = meter.Int64Counter(
		"governor.usage.tokens.total",
		metric.WithDescription("Total number of AI tokens recorded against trial budgets"),
		metric.WithUnit("{token}"),
	)

	return m
}
