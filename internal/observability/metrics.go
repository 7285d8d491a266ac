// Package observability provides the OpenTelemetry instruments recorded by the
// dispatcher and the Prometheus endpoint that exports them.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFetchTotal        = "reportsync.fetch.total"
	metricFetchDuration     = "reportsync.fetch.duration.seconds"
	metricFetchErrors       = "reportsync.fetch.errors.total"
	metricFetchInflight     = "reportsync.fetch.inflight"
	metricFetchDeduplicated = "reportsync.fetch.deduplicated.total"
	metricFetchDiscarded    = "reportsync.fetch.discarded.total"

	attrCategory = "category"
	attrStatus   = "status"
	attrReason   = "reason"

	// StatusOK and StatusError label completed fetches.
	StatusOK    = "ok"
	StatusError = "error"
)

// Reasons a fetch was not issued or its result was dropped.
const (
	ReasonInFlight   = "in_flight"
	ReasonFresh      = "fresh"
	ReasonClaimed    = "claimed"
	ReasonSuperseded = "superseded"
	ReasonReset      = "reset"
)

// durationBucketBoundaries covers 10ms to 120s; report queries with wide
// date ranges can take tens of seconds on the backend.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// FetchMetrics holds the OTel instruments for backend report fetches.
type FetchMetrics struct {
	fetchTotal    metric.Int64Counter
	fetchDuration metric.Float64Histogram
	errorsTotal   metric.Int64Counter
	inflight      metric.Int64UpDownCounter
	deduplicated  metric.Int64Counter
	discarded     metric.Int64Counter
}

// NewFetchMetrics creates fetch instruments from the given meter.
func NewFetchMetrics(mt metric.Meter) (*FetchMetrics, error) {
	fetchTotal, err := mt.Int64Counter(metricFetchTotal,
		metric.WithDescription("Total number of backend report fetches"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchTotal, err)
	}

	fetchDuration, err := mt.Float64Histogram(metricFetchDuration,
		metric.WithDescription("Backend report fetch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchDuration, err)
	}

	errorsTotal, err := mt.Int64Counter(metricFetchErrors,
		metric.WithDescription("Total number of failed backend report fetches"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchErrors, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricFetchInflight,
		metric.WithDescription("Number of backend report fetches in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchInflight, err)
	}

	deduplicated, err := mt.Int64Counter(metricFetchDeduplicated,
		metric.WithDescription("Fetches answered from an in-flight or fresh entry"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchDeduplicated, err)
	}

	discarded, err := mt.Int64Counter(metricFetchDiscarded,
		metric.WithDescription("Fetch results dropped because a newer request or a reset replaced the entry"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchDiscarded, err)
	}

	return &FetchMetrics{
		fetchTotal:    fetchTotal,
		fetchDuration: fetchDuration,
		errorsTotal:   errorsTotal,
		inflight:      inflight,
		deduplicated:  deduplicated,
		discarded:     discarded,
	}, nil
}

// RecordFetch records a settled backend fetch.
func (fm *FetchMetrics) RecordFetch(ctx context.Context, category, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrCategory, category),
		attribute.String(attrStatus, status),
	)

	fm.fetchTotal.Add(ctx, 1, attrs)
	fm.fetchDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		fm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrCategory, category),
		))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (fm *FetchMetrics) TrackInflight(ctx context.Context, category string) func() {
	attrs := metric.WithAttributes(attribute.String(attrCategory, category))
	fm.inflight.Add(ctx, 1, attrs)

	return func() {
		fm.inflight.Add(ctx, -1, attrs)
	}
}

// RecordDeduplicated counts a fetch that issued no backend call.
func (fm *FetchMetrics) RecordDeduplicated(ctx context.Context, category, reason string) {
	fm.deduplicated.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCategory, category),
		attribute.String(attrReason, reason),
	))
}

// RecordDiscarded counts a settled fetch whose result was dropped.
func (fm *FetchMetrics) RecordDiscarded(ctx context.Context, category, reason string) {
	fm.discarded.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCategory, category),
		attribute.String(attrReason, reason),
	))
}
