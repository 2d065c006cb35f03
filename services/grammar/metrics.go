// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package grammar

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("quillcheck.grammar")

var (
	loadTotal    metric.Int64Counter
	parseLatency metric.Float64Histogram
	parseErrors  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call repeatedly.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		loadTotal, err = meter.Int64Counter(
			"grammar_load_total",
			metric.WithDescription("Grammar load attempts by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseLatency, err = meter.Float64Histogram(
			"grammar_parse_duration_seconds",
			metric.WithDescription("Duration of tree-sitter parses"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"grammar_parse_errors_total",
			metric.WithDescription("Tree-sitter parse failures"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordLoad(language string, err error) {
	if initMetrics() != nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	loadTotal.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("language", language),
			attribute.String("status", status),
		))
}

func recordParse(ctx context.Context, language string, d time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("language", language))
	parseLatency.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		parseErrors.Add(ctx, 1, attrs)
	}
}
