package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/manhunt/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer.
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string // e.g. "room.events.>"
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConsumerConfig returns the default consumer configuration.
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		ConsumerName:  "room-gateway",
		SubjectFilter: "room.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer reads room events from JetStream and hands them to the
// connection manager for websocket fan-out.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	js                jetstream.JetStream
	consumer          jetstream.Consumer
	config            JetStreamConsumerConfig
}

// NewEventConsumer connects to NATS and binds the durable consumer.
func NewEventConsumer(cm *ConnectionManager, config JetStreamConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
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

	ec := &EventConsumer{
		connectionManager: cm,
		nc:                nc,
		js:                js,
		config:            config,
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Room gateway websocket consumer",
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start consumes events until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
			} else {
				if ackErr := msg.Ack(); ackErr != nil {
					log.Error().Err(ackErr).Msg("failed to ACK message")
				}
			}
		}
	}
}

// processMessage decodes the room event envelope and fans it out to the
// room's websocket pool. Kick events additionally target the kicked player
// directly so the notice reaches them even if they are mid-reconnect.
func (ec *EventConsumer) processMessage(msg jetstream.Msg) error {
	var event events.RoomEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if event.RoomID == "" {
		return fmt.Errorf("event %s missing room id", event.ID)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("room_id", event.RoomID).
		Str("event_type", string(event.Type)).
		Str("subject", msg.Subject()).
		Msg("processing JetStream event")

	ec.connectionManager.BroadcastToRoom(event.RoomID, event)

	if event.Type == events.EventTypePlayerKicked {
		var payload events.PlayerKickedPayload
		if err := json.Unmarshal(event.Data, &payload); err == nil && payload.PlayerUID != "" {
			ec.connectionManager.BroadcastToUser(event.RoomID, payload.PlayerUID, event)
		}
	}

	return nil
}

// Stop closes the NATS connection.
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
