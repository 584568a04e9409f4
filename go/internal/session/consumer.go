package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ConsumerConfig holds configuration for the meeting events consumer.
type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	SubjectPrefix string // events for a meeting live under <prefix>.<meetingId>.<eventType>
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxAge        time.Duration
}

// DefaultConsumerConfig returns default consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		StreamName:    "MEETING_EVENTS",
		ConsumerName:  "roomclock",
		SubjectPrefix: "meeting.events",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxAge:        24 * time.Hour,
	}
}

// Subject returns the subject an event of eventType for meetingID is published on.
func (c ConsumerConfig) Subject(meetingID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", c.SubjectPrefix, meetingID, eventType)
}

// Consumer feeds a Store from the meeting events stream.
type Consumer struct {
	store    *Store
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   ConsumerConfig
}

// NewConsumer binds a durable consumer for the store's meeting, creating the
// stream when it does not exist yet.
func NewConsumer(ctx context.Context, js jetstream.JetStream, store *Store, config ConsumerConfig) (*Consumer, error) {
	c := &Consumer{store: store, js: js, config: config}
	if err := c.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        c.config.StreamName,
			Description: "Meeting and breakout room updates",
			Subjects:    []string{c.config.SubjectPrefix + ".>"},
			Retention:   jetstream.LimitsPolicy,
			Storage:     jetstream.FileStorage,
			MaxAge:      c.config.MaxAge,
		})
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", c.config.StreamName).Msg("created JetStream stream")
	} else if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	name := c.config.ConsumerName + "-" + c.store.MeetingID()
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		Description:   "Countdown session feed",
		FilterSubject: fmt.Sprintf("%s.%s.>", c.config.SubjectPrefix, c.store.MeetingID()),
		// Latest per subject replays the current meeting and breakout state on start.
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", name).
		Str("stream", c.config.StreamName).
		Msg("bound JetStream consumer")

	c.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("meeting_id", c.store.MeetingID()).
		Str("stream", c.config.StreamName).
		Msg("starting session consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := c.handle(msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process session event")
				// A payload that cannot be decoded will not decode on redelivery.
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (c *Consumer) handle(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("meeting_id", env.MeetingID).
		Str("event_type", env.EventType).
		Msg("processing session event")

	return c.store.Apply(env)
}
