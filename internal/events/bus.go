package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Bus publishes auction events toward the real-time gateway.
type Bus interface {
	Publish(ctx context.Context, event *Event) error
}

// JetStreamConfig holds NATS JetStream connection settings.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // e.g. "auction.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns the default JetStream bus configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "AUCTION_EVENTS",
		SubjectPrefix: "auction.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// JetStreamBus publishes events to a NATS JetStream stream, one subject per
// auction and event type.
type JetStreamBus struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

var _ Bus = (*JetStreamBus)(nil)

// NewJetStreamBus connects to NATS and ensures the event stream exists.
func NewJetStreamBus(ctx context.Context, config JetStreamConfig) (*JetStreamBus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      config.StreamName,
		Subjects:  []string{config.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", config.StreamName, err)
	}

	return &JetStreamBus{nc: nc, js: js, config: config}, nil
}

func (b *JetStreamBus) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.%s", b.config.SubjectPrefix, event.AuctionID, event.Type)
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the underlying NATS connection.
func (b *JetStreamBus) Close() {
	b.nc.Close()
}

// RecordingBus is an in-memory Bus for tests and local development. It
// retains published events and can forward them to a subscriber function.
type RecordingBus struct {
	mu      sync.Mutex
	events  []*Event
	forward func(*Event)
}

var _ Bus = (*RecordingBus)(nil)

func NewRecordingBus() *RecordingBus {
	return &RecordingBus{}
}

// Forward registers fn to receive every subsequently published event.
func (b *RecordingBus) Forward(fn func(*Event)) {
	b.mu.Lock()
	b.forward = fn
	b.mu.Unlock()
}

func (b *RecordingBus) Publish(ctx context.Context, event *Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	fn := b.forward
	b.mu.Unlock()
	if fn != nil {
		fn(event)
	}
	return nil
}

// Events returns a snapshot of everything published so far.
func (b *RecordingBus) Events() []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Event(nil), b.events...)
}

// EventsOfType filters the recorded events by type.
func (b *RecordingBus) EventsOfType(typ EventType) []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Event
	for _, e := range b.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
