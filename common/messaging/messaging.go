// Package messaging provides broker-agnostic publishing abstractions.
// Consumers of alert sources live in consumer/internal/broker; this package
// covers the outbound side (live feed forwarding) and connection health.
package messaging

import (
	"context"
	"time"
)

// Message represents a message sent to or received from a message broker.
type Message struct {
	// Subject is the topic/channel the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs carried as headers.
	Metadata map[string]string

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends data to subject. Delivery is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message including its metadata headers.
	PublishMsg(ctx context.Context, msg *Message) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Client is a Publisher with connection lifecycle controls.
type Client interface {
	Publisher

	// Drain gracefully closes the connection, flushing pending publishes.
	Drain() error

	// IsConnected returns true if the client is connected to the broker.
	IsConnected() bool
}

// Header keys set on forwarded live feed messages.
const (
	HeaderSourceID  = "Alertstream-Source-Id"
	HeaderDataType  = "Alertstream-Data-Type"
	HeaderTopic     = "Alertstream-Topic"
	HeaderPartition = "Alertstream-Partition"
	HeaderOffset    = "Alertstream-Offset"
)
