package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	natsclient "github.com/telhawk-systems/alertstream/common/messaging/nats"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// JetStreamReceiver pulls from a durable JetStream consumer bound to the
// source's subject. The stream sequence stands in for the offset.
type JetStreamReceiver struct {
	client     *natsclient.JetStreamClient
	consumer   jetstream.Consumer
	opts       Options
	autoCommit bool
	pending    jetstream.Msg
}

// durableName converts a group ID into a valid JetStream consumer name.
func durableName(groupID string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")
	return r.Replace(groupID)
}

func deliverPolicy(reset string) jetstream.DeliverPolicy {
	if reset == registry.OffsetLatest {
		return jetstream.DeliverNewPolicy
	}
	return jetstream.DeliverAllPolicy
}

func NewJetStreamReceiver(ctx context.Context, src registry.SourceConfig, opts Options) (*JetStreamReceiver, error) {
	cfg := natsclient.DefaultConfig()
	cfg.URL = src.Brokers
	cfg.Name = "alertstream-" + src.Name
	cfg.MaxReconnects = opts.NATSMaxReconnects
	if opts.NATSReconnectWait > 0 {
		cfg.ReconnectWait = opts.NATSReconnectWait
	}
	cfg.Logger = opts.Logger

	client, err := natsclient.NewJetStreamClient(cfg)
	if err != nil {
		return nil, err
	}

	ccfg := natsclient.DefaultConsumerConfig(durableName(src.GroupID), src.Topic)
	ccfg.DeliverPolicy = deliverPolicy(src.AutoOffsetReset)
	consumer, err := client.BindConsumer(ctx, ccfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &JetStreamReceiver{
		client:     client,
		consumer:   consumer,
		opts:       opts,
		autoCommit: src.EnableAutoCommit,
	}, nil
}

func (r *JetStreamReceiver) Receive(ctx context.Context) (*Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := r.consumer.Next(jetstream.FetchMaxWait(r.opts.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return nil, err
		}

		meta, err := m.Metadata()
		if err != nil {
			_ = m.Term()
			return nil, fmt.Errorf("read message metadata: %w", err)
		}

		msg := &Message{
			Topic:     m.Subject(),
			Offset:    int64(meta.Sequence.Stream),
			Timestamp: meta.Timestamp,
			Value:     m.Data(),
		}
		if hdr := m.Headers(); len(hdr) > 0 {
			msg.Headers = make(map[string]string, len(hdr))
			for k := range hdr {
				msg.Headers[k] = hdr.Get(k)
			}
		}

		if r.autoCommit {
			if err := m.Ack(); err != nil {
				return nil, fmt.Errorf("ack message: %w", err)
			}
		} else {
			r.pending = m
		}
		return msg, nil
	}
}

func (r *JetStreamReceiver) Commit(_ context.Context, msg *Message) error {
	if r.autoCommit || r.pending == nil {
		return nil
	}
	m := r.pending
	r.pending = nil
	if meta, err := m.Metadata(); err == nil && msg != nil && int64(meta.Sequence.Stream) != msg.Offset {
		return fmt.Errorf("commit offset %d does not match pending message %d", msg.Offset, meta.Sequence.Stream)
	}
	return m.Ack()
}

func (r *JetStreamReceiver) Close() error {
	r.pending = nil
	return r.client.Drain()
}
