// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ServiceName: "vlabel", ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp, "disabled telemetry installs a noop provider")

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "vlabel", ExporterType: "zipkin"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: zipkin (supported: grpc, http)", err.Error())
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1.0).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestTracer(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := Tracer("test-tracer").Start(context.Background(), "test-span")
	defer span.End()
	assert.Equal(t, span, trace.SpanFromContext(ctx))
}

func TestAssignmentAttributes(t *testing.T) {
	assert.Equal(t,
		[]attribute.KeyValue{attribute.String(UserKey, "ann"), attribute.String(VideoIDKey, "a.mp4")},
		AssignmentAttributes("ann", "a.mp4"))
	assert.Empty(t, AssignmentAttributes("", ""))
	assert.Len(t, QuotaAttributes(3, 1), 2)
	assert.Len(t, ErrorAttributes("persistence"), 2)
}
