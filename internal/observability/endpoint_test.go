package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/fretlab/internal/conf"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"))
}

// TestNewMetricsConcurrency verifies that independent registries can be
// built concurrently.
func TestNewMetricsConcurrency(t *testing.T) {
	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Registry())
			assert.NotNil(t, m.Tuner)
			assert.NotNil(t, m.MQTT)
			assert.NotNil(t, m.HTTP)
		})
	}
	wg.Wait()
}

func TestNewEndpointRequiresTelemetry(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint(&conf.Settings{}, m)
	require.Error(t, err)
}

func TestEndpointServesMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Tuner.SetListening(true)

	settings := &conf.Settings{Telemetry: conf.TelemetrySettings{Enabled: true, Listen: "127.0.0.1:0"}}
	endpoint, err := NewEndpoint(settings, m)
	require.NoError(t, err)
	assert.Same(t, m, endpoint.GetMetrics())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- endpoint.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fretlab_tuner_listening 1")
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	require.NoError(t, <-done)
	http.DefaultClient.CloseIdleConnections()
}
