package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/observability/metrics"
	"github.com/tphakala/fretlab/internal/pitch"
	"github.com/tphakala/fretlab/internal/tuner"
)

type message struct {
	topic   string
	payload []byte
	retain  bool
}

// fakeClient records publications in memory.
type fakeClient struct {
	mu       sync.Mutex
	messages []message
	failOn   string
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) IsConnected() bool             { return true }
func (f *fakeClient) Disconnect()                   {}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.HasSuffix(topic, f.failOn) {
		return fmt.Errorf("broker rejected %s", topic)
	}
	f.messages = append(f.messages, message{topic: topic, payload: payload, retain: retain})
	return nil
}

func (f *fakeClient) on(topic string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func listening(note *pitch.NoteDetails) tuner.Snapshot {
	return tuner.Snapshot{ID: "s1", State: tuner.StateListening, IsListening: true, NoteDetails: note}
}

func newTestPublisher(client Client, clk *clock, rec metrics.Recorder) *Publisher {
	return NewPublisher(client, PublisherConfig{
		Topic:    "fretlab/tuner",
		Interval: 250 * time.Millisecond,
		Recorder: rec,
		Now:      clk.Now,
	})
}

func TestPublisherRateLimitsUnchangedNote(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	clk := &clock{now: time.Unix(1000, 0)}
	p := newTestPublisher(client, clk, nil)
	ctx := t.Context()

	a := pitch.MapFrequency(110)
	require.NoError(t, p.Handle(ctx, listening(a)))

	for range 5 {
		clk.advance(16 * time.Millisecond)
		require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(110.5))))
	}
	assert.Len(t, client.on("fretlab/tuner/note"), 1, "unchanged note inside interval is throttled")

	clk.advance(250 * time.Millisecond)
	require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(110.2))))
	assert.Len(t, client.on("fretlab/tuner/note"), 2, "interval elapsed")
}

func TestPublisherPacesNotesAcrossChanges(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	clk := &clock{now: time.Unix(1000, 0)}
	p := newTestPublisher(client, clk, nil)
	ctx := t.Context()

	require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(110))))
	clk.advance(200 * time.Millisecond)
	require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(146.83))))
	assert.Len(t, client.on("fretlab/tuner/note"), 2, "a change is sent at once")

	clk.advance(100 * time.Millisecond)
	require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(146.83))))
	assert.Len(t, client.on("fretlab/tuner/note"), 3, "one interval since the first note")

	clk.advance(100 * time.Millisecond)
	require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(146.83))))
	assert.Len(t, client.on("fretlab/tuner/note"), 3)
}

func TestPublisherZeroIntervalSendsEverySnapshot(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	p := NewPublisher(client, PublisherConfig{Topic: "t"})
	for range 4 {
		require.NoError(t, p.Handle(t.Context(), listening(pitch.MapFrequency(196))))
	}
	assert.Len(t, client.on("t/note"), 4)
}

func TestPublisherPublishesOnNoteChange(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	clk := &clock{now: time.Unix(1000, 0)}
	p := newTestPublisher(client, clk, nil)
	ctx := t.Context()

	require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(110))))
	clk.advance(time.Millisecond)
	require.NoError(t, p.Handle(ctx, listening(pitch.MapFrequency(146.83))))
	clk.advance(time.Millisecond)
	require.NoError(t, p.Handle(ctx, listening(nil)))

	notes := client.on("fretlab/tuner/note")
	require.Len(t, notes, 3)

	var second NoteDTO
	require.NoError(t, json.Unmarshal(notes[1].payload, &second))
	assert.Equal(t, "D3", second.Note)
	assert.Equal(t, "s1", second.SessionID)
	require.NotNil(t, second.Target)
	assert.Equal(t, 4, second.Target.String)
	require.NotNil(t, second.NoteDetails)
	assert.Equal(t, "D", second.NoteDetails.NoteName)

	var third NoteDTO
	require.NoError(t, json.Unmarshal(notes[2].payload, &third))
	assert.Empty(t, third.Note)
	assert.Nil(t, third.NoteDetails)
	assert.Equal(t, "none", string(third.Status))
}

func TestPublisherStateMessages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	clk := &clock{now: time.Unix(1000, 0)}
	p := newTestPublisher(client, clk, nil)
	ctx := t.Context()

	idle := tuner.Snapshot{ID: "s1", State: tuner.StateIdle}
	require.NoError(t, p.Handle(ctx, idle))
	require.NoError(t, p.Handle(ctx, idle))
	require.NoError(t, p.Handle(ctx, listening(nil)))
	failed := tuner.Snapshot{ID: "s1", State: tuner.StateError, Error: tuner.MessageDeviceUnavailable}
	require.NoError(t, p.Handle(ctx, failed))

	states := client.on("fretlab/tuner/state")
	require.Len(t, states, 3)
	for _, m := range states {
		assert.True(t, m.retain)
	}

	var last StateDTO
	require.NoError(t, json.Unmarshal(states[2].payload, &last))
	assert.Equal(t, tuner.StateError, last.State)
	assert.Equal(t, tuner.MessageDeviceUnavailable, last.Error)

	assert.Len(t, client.on("fretlab/tuner/note"), 3, "listening flag changes publish immediately")
}

func TestPublisherRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	rec, err := metrics.NewTunerMetrics(registry)
	require.NoError(t, err)

	client := &fakeClient{failOn: "/note"}
	clk := &clock{now: time.Unix(1000, 0)}
	p := newTestPublisher(client, clk, rec)
	ctx := t.Context()

	note := listening(pitch.MapFrequency(196))
	require.Error(t, p.Handle(ctx, note))

	client.mu.Lock()
	client.failOn = ""
	client.mu.Unlock()

	require.NoError(t, p.Handle(ctx, note), "a failed note is not counted as sent")
	assert.Len(t, client.on("fretlab/tuner/note"), 1)
	assert.InDelta(t, 1, rec.OperationCount(metrics.OpPublish, metrics.StatusError), 0)
}

func TestPublisherRunStopsWhenUpdatesClose(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	p := NewPublisher(client, PublisherConfig{Topic: "t", Interval: time.Hour})

	updates := make(chan tuner.Snapshot, 2)
	updates <- listening(pitch.MapFrequency(329.63))
	updates <- listening(pitch.MapFrequency(329.63))
	close(updates)

	require.NoError(t, p.Run(t.Context(), updates))
	assert.Len(t, client.on("t/note"), 1)
	assert.Len(t, client.on("t/state"), 1)
}

func TestPublisherRunStopsOnContext(t *testing.T) {
	t.Parallel()

	p := NewPublisher(&fakeClient{}, PublisherConfig{Topic: "t"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, p.Run(ctx, make(chan tuner.Snapshot)))
}

func TestPublisherConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{MQTT: conf.MQTTSettings{Topic: "x/y", Interval: time.Second, Retain: true}}
	cfg := PublisherConfigFromSettings(settings, nil)
	assert.Equal(t, "x/y", cfg.Topic)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.True(t, cfg.Retain)
}

func TestClientRequiresMetricsAndConnection(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{MQTT: conf.MQTTSettings{Broker: "tcp://127.0.0.1:1883"}}
	_, err := NewClient(settings, nil)
	require.Error(t, err)

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c, err := NewClient(settings, m)
	require.NoError(t, err)

	assert.False(t, c.IsConnected())
	require.Error(t, c.Publish(t.Context(), "t/note", []byte("{}"), false))
	c.Disconnect()
	c.Disconnect()
}

func TestClientRejectsInvalidBroker(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c, err := NewClient(&conf.Settings{MQTT: conf.MQTTSettings{Broker: "://bad"}}, m)
	require.NoError(t, err)

	require.Error(t, c.Connect(t.Context()))
	require.Error(t, c.Connect(t.Context()), "second attempt inside the cooldown")
}

func TestClientConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{MQTT: conf.MQTTSettings{
		Broker:   "tcp://broker.local:1883",
		Username: "tuner",
		Password: "secret",
		QoS:      1,
	}}

	config := ConfigFromSettings(settings)
	assert.Equal(t, "tcp://broker.local:1883", config.Broker)
	assert.Equal(t, "tuner", config.Username)
	assert.Equal(t, byte(1), config.QoS)
	assert.True(t, strings.HasPrefix(config.ClientID, "fretlab-"))
	assert.Len(t, config.ClientID, len("fretlab-")+8)
	assert.Equal(t, DefaultConfig().ConnectTimeout, config.ConnectTimeout)

	settings.MQTT.ClientID = "bench-tuner"
	assert.Equal(t, "bench-tuner", ConfigFromSettings(settings).ClientID)
}
