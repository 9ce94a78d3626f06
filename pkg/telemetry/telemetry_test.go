// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AcademicAgent/pkg/config"
)

func TestInit_NoneInstallsNothing(t *testing.T) {
	p, err := Init(context.Background(), Config{ServiceName: "test", TraceExporter: "none", MetricExporter: "none"})
	require.NoError(t, err)
	require.NotNil(t, p.Metrics)
	assert.Empty(t, p.shutdown)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_StdoutTraceRegistersShutdown(t *testing.T) {
	p, err := Init(context.Background(), Config{ServiceName: "test", TraceExporter: "stdout", MetricExporter: "none"})
	require.NoError(t, err)
	assert.Len(t, p.shutdown, 1)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	assert.True(t, errors.Is(err, ErrUnknownExporter))

	_, err = Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "statsd"})
	assert.True(t, errors.Is(err, ErrUnknownExporter))
}

func TestMetricsHandlerServes(t *testing.T) {
	p, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "none"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.Metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFromConfig(t *testing.T) {
	t.Setenv("ACADEMIC_ENV", "staging")
	cfg := FromConfig(config.TelemetryConfig{ServiceName: "academic-agent", TraceExporter: "otlp", OTLPEndpoint: "collector:4317"}, "1.2.3")
	assert.Equal(t, "otlp", cfg.TraceExporter)
	assert.Equal(t, "staging", cfg.Environment)
	assert.True(t, cfg.OTLPInsecure)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
}
