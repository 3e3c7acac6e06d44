// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracing installs the process-wide OpenTelemetry TracerProvider
// used by internal/restore and anything else that calls otel.Tracer. With
// no exporter configured, otel's no-op provider is left in place and every
// span created elsewhere is free but discarded.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Exporter selects where spans go once tracing is enabled.
type Exporter string

const (
	// ExporterNone leaves the global no-op provider in place.
	ExporterNone Exporter = "none"
	// ExporterStdout writes one JSON line per span to the given writer.
	ExporterStdout Exporter = "stdout"
)

// Setup installs a TracerProvider as the global otel provider. serviceName
// tags every span's resource. w is only consulted for ExporterStdout. The
// returned shutdown func flushes and releases the provider; it is a no-op
// (and safe to call) when exporter is ExporterNone.
func Setup(ctx context.Context, exporter Exporter, serviceName string, w io.Writer) (shutdown func(context.Context) error, err error) {
	if exporter != ExporterStdout {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
