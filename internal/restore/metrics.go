// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restore

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var restoreMeter = otel.Meter("checkpointd.restore")

var (
	restoreDuration      metric.Float64Histogram
	restoreTotal         metric.Int64Counter
	restoreRejectedTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the restore package's instruments against whatever
// MeterProvider is installed globally at first use. Safe to call repeatedly;
// only the first call does any work.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		restoreDuration, err = restoreMeter.Float64Histogram(
			"restore_duration_seconds",
			metric.WithDescription("Duration of restore_checkpoint calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		restoreTotal, err = restoreMeter.Int64Counter(
			"restore_total",
			metric.WithDescription("Total restore_checkpoint calls, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		restoreRejectedTotal, err = restoreMeter.Int64Counter(
			"restore_rejected_total",
			metric.WithDescription("Total restore_checkpoint calls rejected for a concurrent restore already in flight"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRestoreOutcome(ctx context.Context, duration time.Duration, validated bool, succeeded bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Bool("validated", validated),
		attribute.Bool("succeeded", succeeded),
	)
	restoreDuration.Record(ctx, duration.Seconds(), attrs)
	restoreTotal.Add(ctx, 1, attrs)
}

func recordRestoreRejected(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	restoreRejectedTotal.Add(ctx, 1)
}
