package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/observability/metrics"
	"github.com/tphakala/fretlab/internal/tuner"
)

// Topic suffixes appended to the configured base topic.
const (
	NoteTopic  = "note"
	StateTopic = "state"
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Topic string
	// Interval is the minimum time between note messages while the note
	// name and listening flag are unchanged.
	Interval time.Duration
	Retain   bool
	Recorder metrics.Recorder
	Now      func() time.Time
}

// PublisherConfigFromSettings builds a PublisherConfig from settings.
func PublisherConfigFromSettings(settings *conf.Settings, recorder metrics.Recorder) PublisherConfig {
	return PublisherConfig{
		Topic:    settings.MQTT.Topic,
		Interval: settings.MQTT.Interval,
		Retain:   settings.MQTT.Retain,
		Recorder: recorder,
	}
}

// Publisher forwards tuner snapshots to MQTT. Note messages go out on every
// change of note name or listening state and otherwise at most once per
// interval. State messages are retained and sent when the state changes.
type Publisher struct {
	client Client
	config PublisherConfig
	log    logger.Logger

	// notes paces unchanged note messages to one per Interval.
	notes     *rate.Limiter
	sentNote  bool
	lastNote  string
	listening bool

	sentState bool
	lastState tuner.State
	lastError string
}

// NewPublisher returns a publisher writing through client.
func NewPublisher(client Client, config PublisherConfig) *Publisher {
	if config.Recorder == nil {
		config.Recorder = metrics.NoOpRecorder{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Publisher{
		client: client,
		config: config,
		log:    GetLogger(),
		notes:  rate.NewLimiter(rate.Every(config.Interval), 1),
	}
}

// Run publishes every snapshot received from updates until ctx ends or
// updates is closed. Publish failures are logged and do not stop Run.
func (p *Publisher) Run(ctx context.Context, updates <-chan tuner.Snapshot) error {
	p.log.Info("publishing tuner updates", logger.String("topic", p.config.Topic))
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if err := p.Handle(ctx, snap); err != nil {
				p.log.Warn("mqtt publish failed", logger.Error(err))
			}
		}
	}
}

// Handle publishes snap when it is due.
func (p *Publisher) Handle(ctx context.Context, snap tuner.Snapshot) error {
	var errs []error

	if p.stateChanged(snap) {
		if err := p.publishJSON(ctx, StateTopic, newStateDTO(snap), true); err != nil {
			errs = append(errs, err)
		} else {
			p.sentState = true
			p.lastState = snap.State
			p.lastError = snap.Error
		}
	}

	now := p.config.Now()
	if !p.noteDue(snap, now) {
		p.config.Recorder.RecordOperation(metrics.OpPublish, metrics.StatusSkipped)
		return errors.Join(errs...)
	}

	dto := newNoteDTO(snap)
	if err := p.publishJSON(ctx, NoteTopic, dto, p.config.Retain); err != nil {
		errs = append(errs, err)
	} else {
		p.sentNote = true
		p.lastNote = dto.Note
		p.listening = snap.IsListening
	}
	return errors.Join(errs...)
}

func (p *Publisher) stateChanged(snap tuner.Snapshot) bool {
	return !p.sentState || snap.State != p.lastState || snap.Error != p.lastError
}

// noteDue reports whether a note message goes out for snap. Changes are
// always due and take a token when one is available.
func (p *Publisher) noteDue(snap tuner.Snapshot, now time.Time) bool {
	allowed := p.notes.AllowN(now, 1)
	if !p.sentNote || snap.IsListening != p.listening {
		return true
	}
	note := ""
	if snap.NoteDetails != nil {
		note = snap.NoteDetails.Name()
	}
	return note != p.lastNote || allowed
}

func (p *Publisher) publishJSON(ctx context.Context, suffix string, v any, retain bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryGeneric).
			Build()
	}

	topic := p.config.Topic + "/" + suffix
	if err := p.client.Publish(ctx, topic, payload, retain); err != nil {
		p.config.Recorder.RecordOperation(metrics.OpPublish, metrics.StatusError)
		p.config.Recorder.RecordError(metrics.OpPublish, suffix)
		return err
	}
	p.config.Recorder.RecordOperation(metrics.OpPublish, metrics.StatusSuccess)
	return nil
}
