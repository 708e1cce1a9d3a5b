package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cory-johannsen/rollbot/internal/config"
)

// collector accepts any OTLP/HTTP export and counts metric posts.
func collector(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var metricPosts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/metrics" {
			metricPosts.Add(1)
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &metricPosts
}

func TestSetupTelemetry_NoopWithoutEndpoint(t *testing.T) {
	before := otel.GetMeterProvider()
	shutdown, err := SetupTelemetry(context.Background(), config.TracingConfig{ServiceName: "rollbot"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.Same(t, before, otel.GetMeterProvider(), "no provider is installed without an endpoint")
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTelemetry_BadEndpoint(t *testing.T) {
	shutdown, err := SetupTelemetry(context.Background(), config.TracingConfig{Endpoint: "localhost", ServiceName: "rollbot"})
	assert.Error(t, err)
	require.NotNil(t, shutdown)
}

func TestSetupTelemetry_InstallsProviders(t *testing.T) {
	srv, metricPosts := collector(t)
	cfg := config.TracingConfig{Endpoint: srv.URL, ServiceName: "rollbot-test"}

	shutdown, err := SetupTelemetry(context.Background(), cfg)
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, otel.GetMeterProvider())

	counter, err := otel.Meter("rollbot-test").Int64Counter("rollbot.evaluations")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	require.NoError(t, shutdown(context.Background()))
	assert.GreaterOrEqual(t, metricPosts.Load(), int32(1), "shutdown flushes counters to the collector")
	assert.NoError(t, shutdown(context.Background()), "a second shutdown is a no-op")
}
