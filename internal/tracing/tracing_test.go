// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupNoneLeavesGlobalProviderUnchanged(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), ExporterNone, "checkpointd-test", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetupStdoutWritesSpanOnEnd(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), ExporterStdout, "checkpointd-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("checkpointd.tracing.test").Start(context.Background(), "test-span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "test-span")
}
