package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/telhawk-systems/alertstream/common/messaging"
)

// HeaderAlertKey carries the origin alert key on published messages.
const HeaderAlertKey = "Alert-Key"

// Sender delivers one alert payload to a broker.
type Sender interface {
	Send(ctx context.Context, key string, payload []byte) error
	Close() error
}

type kafkaSender struct {
	writer *kafka.Writer
}

func newKafkaSender(brokers, topic string) *kafkaSender {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &kafkaSender{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

func (s *kafkaSender) Send(ctx context.Context, key string, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: []kafka.Header{{Key: HeaderAlertKey, Value: []byte(key)}},
	})
}

func (s *kafkaSender) Close() error {
	return s.writer.Close()
}

// natsSender publishes onto a subject captured by a JetStream stream.
type natsSender struct {
	pub     messaging.Publisher
	subject string
}

func (s *natsSender) Send(ctx context.Context, key string, payload []byte) error {
	return s.pub.PublishMsg(ctx, &messaging.Message{
		Subject:  s.subject,
		Data:     payload,
		Metadata: map[string]string{HeaderAlertKey: key},
	})
}

func (s *natsSender) Close() error {
	return s.pub.Close()
}

// replay calls fn for every non-blank line of a JSON Lines stream.
func replay(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(append([]byte(nil), line...)); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}
