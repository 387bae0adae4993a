package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher publishes room events for other game instances to consume.
type Publisher interface {
	Publish(ctx context.Context, event RoomEvent) error
}

// NewEvent builds an event envelope with a marshaled payload.
func NewEvent(roomID string, eventType EventType, payload interface{}) (RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return RoomEvent{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return RoomEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// LogPublisher logs events instead of publishing them. Used in development
// and in tests.
type LogPublisher struct{}

// Publish logs the event.
func (p LogPublisher) Publish(ctx context.Context, event RoomEvent) error {
	log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("room_id", event.RoomID).
		Msg("publishing room event")
	return nil
}

// NATSPublisherConfig holds configuration for the NATS JetStream publisher.
type NATSPublisherConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // events go to "<prefix>.<room id>.<event type>"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSPublisherConfig returns the default publisher configuration.
func DefaultNATSPublisherConfig() NATSPublisherConfig {
	return NATSPublisherConfig{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		SubjectPrefix: "room.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher publishes room events to a JetStream stream.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSPublisherConfig
}

// NewNATSPublisher connects to NATS and ensures the stream exists.
func NewNATSPublisher(config NATSPublisherConfig) (*NATSPublisher, error) {
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

	_, err = js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
		Name:      config.StreamName,
		Subjects:  []string{config.SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &NATSPublisher{nc: nc, js: js, config: config}, nil
}

// Publish sends the event to its room-scoped subject.
func (p *NATSPublisher) Publish(ctx context.Context, event RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", p.config.SubjectPrefix, event.RoomID, event.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Msg("published room event")
	return nil
}

// Close shuts down the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
