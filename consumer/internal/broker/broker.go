// Package broker adapts Kafka and NATS JetStream subscriptions to a single
// pull-style Receiver used by the consumer workers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// ErrUnsupportedKind is returned for a source kind with no receiver.
var ErrUnsupportedKind = errors.New("unsupported source kind")

// Message is one record read from a source.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// Receiver pulls messages from one subscription. Implementations are not safe
// for concurrent use; each worker owns its receiver.
type Receiver interface {
	// Receive blocks until a message arrives, an error occurs or ctx is done.
	Receive(ctx context.Context) (*Message, error)

	// Commit marks msg as processed. It is a no-op when the source commits
	// automatically.
	Commit(ctx context.Context, msg *Message) error

	Close() error
}

// Factory opens a Receiver for a source.
type Factory interface {
	NewReceiver(ctx context.Context, src registry.SourceConfig) (Receiver, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, src registry.SourceConfig) (Receiver, error)

func (f FactoryFunc) NewReceiver(ctx context.Context, src registry.SourceConfig) (Receiver, error) {
	return f(ctx, src)
}

// Options are the receiver settings shared by every source.
type Options struct {
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// NATS connection tuning for JetStream sources.
	NATSMaxReconnects int
	NATSReconnectWait time.Duration

	Logger *logging.Logger
}

func DefaultOptions() Options {
	return Options{
		MinBytes:          1e3,
		MaxBytes:          10e6,
		MaxWait:           time.Second,
		NATSMaxReconnects: -1,
		NATSReconnectWait: 2 * time.Second,
	}
}

// Dialer is the production Factory, choosing the receiver by source kind.
type Dialer struct {
	opts Options
}

func NewDialer(opts Options) *Dialer {
	opts.Logger = logging.OrDefault(opts.Logger)
	return &Dialer{opts: opts}
}

func (d *Dialer) NewReceiver(ctx context.Context, src registry.SourceConfig) (Receiver, error) {
	switch src.Kind {
	case registry.KindKafka, "":
		return NewKafkaReceiver(src, d.opts), nil
	case registry.KindNATS:
		return NewJetStreamReceiver(ctx, src, d.opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, src.Kind)
	}
}
