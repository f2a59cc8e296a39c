/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package telemetry installs the global OpenTelemetry providers for a healer
// run. Metrics are bridged into a Prometheus registry so they reach the same
// textfile as the session counters. Spans are written as JSON lines to a file
// when one is configured and are dropped otherwise.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config selects where telemetry goes.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Registerer receives the OpenTelemetry metrics. Required.
	Registerer prometheus.Registerer

	// TracesFile receives finished spans. Empty disables tracing.
	TracesFile string
}

// Setup installs a MeterProvider and, when TracesFile is set, a
// TracerProvider as the otel globals. It must run before instruments are
// created. The returned shutdown flushes pending spans and closes the traces
// file; read the registry before calling it.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if cfg.Registerer == nil {
		return nil, errors.New("telemetry: nil registerer")
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFuncs[i](ctx))
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	mp, err := newMeterProvider(cfg.Registerer, res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	if cfg.TracesFile == "" {
		return shutdown, nil
	}
	tp, closeFile, err := newTracerProvider(cfg.TracesFile, res)
	if err != nil {
		return nil, errors.Join(err, shutdown(ctx))
	}
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, closeFile, tp.Shutdown)

	return shutdown, nil
}

func newMeterProvider(reg prometheus.Registerer, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	), nil
}

func newTracerProvider(path string, res *resource.Resource) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening traces file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, func(context.Context) error { return f.Close() }, nil
}
