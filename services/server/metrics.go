// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("quillcheck.server")

var (
	checksTotal   metric.Int64Counter
	checkDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		checksTotal, err = meter.Int64Counter(
			"server_checks_total",
			metric.WithDescription("Document checks by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		checkDuration, err = meter.Float64Histogram(
			"server_check_duration_seconds",
			metric.WithDescription("End-to-end duration of a document check"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordCheck(ctx context.Context, language string, d time.Duration, status string) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.String("status", status),
	)
	checksTotal.Add(ctx, 1, attrs)
	checkDuration.Record(ctx, d.Seconds(), attrs)
}
