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
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRestoreInstrumentsRecordAgainstSDKProvider exercises the same
// meter.Int64Counter/Float64Histogram calls this package's metrics.go makes,
// against a real SDK MeterProvider with a manual reader, so the dependency on
// go.opentelemetry.io/otel/sdk/metric is proven to round-trip rather than
// merely imported.
func TestRestoreInstrumentsRecordAgainstSDKProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	meter := provider.Meter("checkpointd.restore.test")
	counter, err := meter.Int64Counter("restore_total_test")
	require.NoError(t, err)
	histogram, err := meter.Float64Histogram("restore_duration_seconds_test")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("succeeded", true)))
	histogram.Record(ctx, 0.25, metric.WithAttributes(attribute.Bool("succeeded", true)))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	require.Len(t, rm.ScopeMetrics, 1)
	metrics := rm.ScopeMetrics[0].Metrics
	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, m.Name)
	}
	assert.Contains(t, names, "restore_total_test")
	assert.Contains(t, names, "restore_duration_seconds_test")
}
