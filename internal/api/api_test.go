package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/fretlab/internal/capture"
	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/observability/metrics"
	"github.com/tphakala/fretlab/internal/pitch"
	"github.com/tphakala/fretlab/internal/tuner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

// fakeTuner is an in-memory TunerService.
type fakeTuner struct {
	mu       sync.Mutex
	snap     tuner.Snapshot
	startErr error
	starts   int
	stops    int
	subs     []chan tuner.Snapshot
}

func newFakeTuner() *fakeTuner {
	return &fakeTuner{snap: tuner.Snapshot{ID: "session-1", State: tuner.StateIdle}}
}

func (f *fakeTuner) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		f.snap.State = tuner.StateError
		f.snap.Error = tuner.MessagePermissionDenied
		return f.startErr
	}
	f.snap.State = tuner.StateListening
	f.snap.IsListening = true
	return nil
}

func (f *fakeTuner) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.snap = tuner.Snapshot{ID: f.snap.ID, State: tuner.StateIdle}
}

func (f *fakeTuner) Snapshot() tuner.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeTuner) Subscribe() (<-chan tuner.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan tuner.Snapshot, 8)
	ch <- f.snap
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeTuner) publish(snap tuner.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	for _, ch := range f.subs {
		ch <- snap
	}
}

func testSettings() *conf.Settings {
	return &conf.Settings{Audio: conf.AudioSettings{Device: "sysdefault"}}
}

func newTestController(t *testing.T, service TunerService, opts ...Option) (*echo.Echo, *Controller) {
	t.Helper()
	e := echo.New()
	c := New(e, testSettings(), service, opts...)
	return e, c
}

func doRequest(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetTuner(t *testing.T) {
	service := newFakeTuner()
	note := pitch.MapFrequency(110.2)
	service.snap = tuner.Snapshot{ID: "session-1", State: tuner.StateListening, IsListening: true, NoteDetails: note}
	e, _ := newTestController(t, service)

	rec := doRequest(e, http.MethodGet, "/api/v1/tuner")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeView(t, rec)
	assert.Equal(t, "session-1", body["id"])
	assert.Equal(t, "listening", body["state"])
	assert.Equal(t, true, body["isListening"])
	assert.Equal(t, "in_tune", body["status"])

	details, ok := body["noteDetails"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A", details["noteName"])
	assert.InDelta(t, 2, details["octave"], 0)

	target, ok := body["target"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A2", target["name"])
}

func TestGetTunerWithoutNote(t *testing.T) {
	e, _ := newTestController(t, newFakeTuner())

	body := decodeView(t, doRequest(e, http.MethodGet, "/api/v1/tuner"))
	assert.Nil(t, body["noteDetails"])
	assert.Nil(t, body["target"])
	assert.Equal(t, "none", body["status"])
	assert.NotContains(t, body, "error")
}

func TestStartAndStopTuner(t *testing.T) {
	service := newFakeTuner()
	e, _ := newTestController(t, service)

	rec := doRequest(e, http.MethodPost, "/api/v1/tuner/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeView(t, rec)["isListening"])

	rec = doRequest(e, http.MethodPost, "/api/v1/tuner/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeView(t, rec)["isListening"])

	assert.Equal(t, 1, service.starts)
	assert.Equal(t, 1, service.stops)

	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(e, http.MethodGet, "/api/v1/tuner/start").Code)
}

func TestStartTunerErrorStatus(t *testing.T) {
	service := newFakeTuner()
	service.startErr = fmt.Errorf("%w: %w", capture.ErrPermissionDenied, os.ErrPermission)
	e, _ := newTestController(t, service)

	rec := doRequest(e, http.MethodPost, "/api/v1/tuner/start")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeView(t, rec)
	assert.Equal(t, "error", body["state"])
	assert.Equal(t, tuner.MessagePermissionDenied, body["error"])
}

func TestStartErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{capture.ErrPermissionDenied, http.StatusForbidden},
		{capture.ErrDeviceUnavailable, http.StatusServiceUnavailable},
		{tuner.ErrStartAbandoned, http.StatusConflict},
		{tuner.ErrSessionClosed, http.StatusGone},
		{fmt.Errorf("open: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, startErrorStatus(tt.err), tt.err.Error())
	}
}

func TestStandardTuning(t *testing.T) {
	e, _ := newTestController(t, newFakeTuner())

	rec := doRequest(e, http.MethodGet, "/api/v1/tuning/standard")
	require.Equal(t, http.StatusOK, rec.Code)

	var table []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	require.Len(t, table, 6)
	assert.Equal(t, "E2", table[0]["name"])
	assert.InDelta(t, 82.41, table[0]["frequency"], 1e-9)
	assert.InDelta(t, 6, table[0]["string"], 0)
}

func TestDevicesAreCached(t *testing.T) {
	var calls atomic.Int32
	lister := func() ([]capture.DeviceInfo, error) {
		calls.Add(1)
		return []capture.DeviceInfo{{Index: 0, Name: "USB Interface", ID: "hw:1,0", IsDefault: true}}, nil
	}
	e, _ := newTestController(t, newFakeTuner(), WithDeviceLister(lister))

	var first DevicesResponse
	rec := doRequest(e, http.MethodGet, "/api/v1/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.Cached)
	assert.Equal(t, "sysdefault", first.Selected)
	require.Len(t, first.Devices, 1)
	assert.Equal(t, "USB Interface", first.Devices[0].Name)

	var second DevicesResponse
	require.NoError(t, json.Unmarshal(doRequest(e, http.MethodGet, "/api/v1/devices").Body.Bytes(), &second))
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), calls.Load())

	doRequest(e, http.MethodGet, "/api/v1/devices?refresh=true")
	assert.Equal(t, int32(2), calls.Load())
}

func TestDevicesError(t *testing.T) {
	lister := func() ([]capture.DeviceInfo, error) { return nil, capture.ErrDeviceUnavailable }
	e, _ := newTestController(t, newFakeTuner(), WithDeviceLister(lister))

	rec := doRequest(e, http.MethodGet, "/api/v1/devices")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Len(t, resp.CorrelationID, 8)
	assert.Contains(t, resp.Error, "unavailable")
}

func TestHealthCheck(t *testing.T) {
	e, _ := newTestController(t, newFakeTuner())

	rec := doRequest(e, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeView(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "idle", body["tuner"])
}

func TestMetricsMiddleware(t *testing.T) {
	m, err := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	e, _ := newTestController(t, newFakeTuner(), WithMetrics(m))

	doRequest(e, http.MethodGet, "/api/v1/tuner")
	doRequest(e, http.MethodGet, "/api/v1/tuner")
	doRequest(e, http.MethodGet, "/api/v1/nope")

	count := testutil.CollectAndCount(m, "fretlab_http_requests_total")
	assert.Equal(t, 2, count, "one series per route and status")
}

func TestStreamTuner(t *testing.T) {
	service := newFakeTuner()
	m, err := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	settings := testSettings()
	settings.WebServer.Listen = "127.0.0.1:0"
	server := NewServer(settings, service, WithMetrics(m), WithHeartbeat(20*time.Millisecond))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/api/v1/tuner/stream")
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no SSE event")
			return ""
		}
	}

	assert.Equal(t, "connected", next())
	assert.Equal(t, "note", next(), "current snapshot")

	service.publish(tuner.Snapshot{ID: "session-1", State: tuner.StateListening, IsListening: true,
		NoteDetails: pitch.MapFrequency(196)})
	seen := map[string]bool{}
	for !seen["note"] || !seen["heartbeat"] {
		seen[next()] = true
	}
	assert.InDelta(t, 1, m.GetActiveSSEConnections(), 0)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, resp.Body.Close())
	for range events {
	}
	http.DefaultClient.CloseIdleConnections()
}
