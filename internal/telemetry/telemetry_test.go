package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "governor", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, 10*time.Second, cfg.MetricInterval)

	custom := Config{ServiceName: "gov-api", SampleRatio: 0.25, MetricInterval: time.Minute}
	custom.ApplyDefaults()
	assert.Equal(t, "gov-api", custom.ServiceName)
	assert.Equal(t, 0.25, custom.SampleRatio)
	assert.Equal(t, time.Minute, custom.MetricInterval)
}

func TestNewResource(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "")

	cfg := Config{ServiceName: "governor-test", Version: "1.2.3"}
	cfg.ApplyDefaults()

	res, err := newResource(context.Background(), cfg)
	require.NoError(t, err)

	var name, version string
	for _, kv := range res.Attributes() {
		switch string(kv.Key) {
		case "service.name":
			name = kv.Value.AsString()
		case "service.version":
			version = kv.Value.AsString()
		}
	}
	assert.Equal(t, "governor-test", name)
	assert.Equal(t, "1.2.3", version)
}

func TestGetMetrics_Singleton(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	assert.Same(t, m, GetMetrics())
	assert.NotNil(t, m.ActionsRequestedTotal)
	assert.NotNil(t, m.ActionRequestDuration)
	assert.NotNil(t, m.AccessFailOpenTotal)
}
