package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamClient is a Client that can bind durable pull consumers.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// ConsumerConfig describes a durable pull consumer reading one subject.
type ConsumerConfig struct {
	Durable       string
	Subject       string
	DeliverPolicy jetstream.DeliverPolicy
	// AckWait is how long an unacknowledged alert waits before redelivery.
	AckWait time.Duration
	// MaxAckPending of 1 keeps a source strictly ordered.
	MaxAckPending int
}

// DefaultConsumerConfig reads subject from the start of its stream, one
// unacknowledged alert at a time.
func DefaultConsumerConfig(durable, subject string) ConsumerConfig {
	return ConsumerConfig{
		Durable:       durable,
		Subject:       subject,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       30 * time.Second,
		MaxAckPending: 1,
	}
}

func (c ConsumerConfig) jetstream() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          c.Durable,
		Durable:       c.Durable,
		FilterSubject: c.Subject,
		DeliverPolicy: c.DeliverPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.AckWait,
		MaxAckPending: c.MaxAckPending,
	}
}

func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(client.conn)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}
	return &JetStreamClient{Client: client, js: js}, nil
}

// BindConsumer finds the stream capturing cfg.Subject and creates or updates
// the durable consumer on it. Publishers own the stream; it is never created
// here.
func (c *JetStreamClient) BindConsumer(ctx context.Context, cfg ConsumerConfig) (jetstream.Consumer, error) {
	streamName, err := c.js.StreamNameBySubject(ctx, cfg.Subject)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, fmt.Errorf("no stream captures subject %s: %w", cfg.Subject, err)
	}
	if err != nil {
		return nil, fmt.Errorf("look up stream for %s: %w", cfg.Subject, err)
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", streamName, err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, cfg.jetstream())
	if err != nil {
		return nil, fmt.Errorf("bind consumer %s on stream %s: %w", cfg.Durable, streamName, err)
	}
	return consumer, nil
}
