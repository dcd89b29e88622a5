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
)

func TestNewProvider_Disabled(t *testing.T) {
	for _, cfg := range []Config{
		{Enabled: false, ServiceName: "test-service", ExporterType: "grpc"},
		{Enabled: true, ServiceName: "test-service", ExporterType: "noop"},
		{Enabled: true, ServiceName: "test-service"},
	} {
		provider, err := NewProvider(context.Background(), cfg)
		require.NoError(t, err)
		assert.Nil(t, provider.tp)

		_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
		assert.False(t, span.IsRecording())
		span.End()
	}
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "test-service", ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http, noop)", err.Error())
}

func TestNewProvider_HTTPExporterRecords(t *testing.T) {
	t.Cleanup(func() { _, _ = NewProvider(context.Background(), Config{}) })

	provider, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "videocat-test",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	require.NotNil(t, provider.tp)

	_, span := Tracer("test").Start(context.Background(), "recorded")
	assert.True(t, span.IsRecording())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = provider.Shutdown(ctx)
}

func TestProvider_ShutdownNil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}
