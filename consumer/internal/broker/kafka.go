package broker

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

// KafkaReceiver reads one topic as a member of a consumer group.
type KafkaReceiver struct {
	reader     *kafka.Reader
	autoCommit bool
}

// readerConfig maps a source onto kafka-go reader settings.
func readerConfig(src registry.SourceConfig, opts Options) kafka.ReaderConfig {
	cfg := kafka.ReaderConfig{
		Brokers:        src.BrokerList(),
		GroupID:        src.GroupID,
		Topic:          src.Topic,
		MinBytes:       opts.MinBytes,
		MaxBytes:       opts.MaxBytes,
		MaxWait:        opts.MaxWait,
		SessionTimeout: src.SessionTimeout,
		StartOffset:    kafka.FirstOffset,
	}
	if src.AutoOffsetReset == registry.OffsetLatest {
		cfg.StartOffset = kafka.LastOffset
	}
	if src.EnableAutoCommit {
		cfg.CommitInterval = src.AutoCommitInterval
	}
	if opts.Logger != nil {
		logger := opts.Logger.With(logging.SourceName(src.Name), logging.Topic(src.Topic))
		cfg.ErrorLogger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn("kafka reader: " + fmt.Sprintf(msg, args...))
		})
	}
	return cfg
}

func NewKafkaReceiver(src registry.SourceConfig, opts Options) *KafkaReceiver {
	return &KafkaReceiver{
		reader:     kafka.NewReader(readerConfig(src, opts)),
		autoCommit: src.EnableAutoCommit,
	}
}

func (r *KafkaReceiver) Receive(ctx context.Context) (*Message, error) {
	var (
		m   kafka.Message
		err error
	)
	if r.autoCommit {
		m, err = r.reader.ReadMessage(ctx)
	} else {
		m, err = r.reader.FetchMessage(ctx)
	}
	if err != nil {
		return nil, err
	}
	return fromKafka(m), nil
}

func (r *KafkaReceiver) Commit(ctx context.Context, msg *Message) error {
	if r.autoCommit || msg == nil {
		return nil
	}
	return r.reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

func (r *KafkaReceiver) Close() error {
	return r.reader.Close()
}

func fromKafka(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Timestamp: m.Time,
		Key:       m.Key,
		Value:     m.Value,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}
