// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("quillcheck.checker")

var (
	backendLatency metric.Float64Histogram
	backendErrors  metric.Int64Counter
	retriesTotal   metric.Int64Counter
	coalescedTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		backendLatency, err = meter.Float64Histogram(
			"checker_backend_duration_seconds",
			metric.WithDescription("Duration of backend check requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		backendErrors, err = meter.Int64Counter(
			"checker_backend_errors_total",
			metric.WithDescription("Failed backend check requests"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		retriesTotal, err = meter.Int64Counter(
			"checker_retries_total",
			metric.WithDescription("Backend request retries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		coalescedTotal, err = meter.Int64Counter(
			"checker_coalesced_total",
			metric.WithDescription("Check calls served by a shared flight"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordBackendRequest(ctx context.Context, d time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	backendLatency.Record(ctx, d.Seconds())
	if err != nil {
		backendErrors.Add(ctx, 1)
	}
}

func recordRetry(language string) {
	if initMetrics() != nil {
		return
	}
	retriesTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("language", language)))
}

func recordCoalesced(shared bool) {
	if !shared || initMetrics() != nil {
		return
	}
	coalescedTotal.Add(context.Background(), 1)
}
