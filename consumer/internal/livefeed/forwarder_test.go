package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/alertstream/common/logging"
	"github.com/telhawk-systems/alertstream/common/messaging"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (p *recordingPublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) messages() []*messaging.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*messaging.Message(nil), p.msgs...)
}

func TestForwarder_Forward(t *testing.T) {
	pub := &recordingPublisher{}
	fw := NewForwarder(pub, "", logging.Discard())

	e := Envelope{Topic: "alerts.ngav", Partition: 2, Offset: 77, Payload: `{"id":"x"}`, SourceID: "src-1", DataType: "ngav"}
	require.NoError(t, fw.Forward(context.Background(), e))

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alertstream.livefeed.ngav", msgs[0].Subject)
	assert.Equal(t, "77", msgs[0].Metadata[messaging.HeaderOffset])
	assert.Equal(t, "2", msgs[0].Metadata[messaging.HeaderPartition])
	assert.Equal(t, "src-1", msgs[0].Metadata[messaging.HeaderSourceID])

	var decoded Envelope
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	assert.Equal(t, e.Payload, decoded.Payload)
}

func TestForwarder_RunUntilCancelled(t *testing.T) {
	pub := &recordingPublisher{}
	fw := NewForwarder(pub, "custom.feed", logging.Discard())
	feed := New(10)
	sub := feed.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fw.Run(ctx, sub)
		close(done)
	}()

	feed.Publish(Envelope{Offset: 1})
	feed.Publish(Envelope{Offset: 2, DataType: "ngav", ClassifiedAs: "edr"})

	require.Eventually(t, func() bool { return len(pub.messages()) == 2 }, time.Second, 10*time.Millisecond)
	msgs := pub.messages()
	assert.Equal(t, "custom.feed.unknown", msgs[0].Subject)
	assert.Equal(t, "custom.feed.edr", msgs[1].Subject)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
	assert.Equal(t, 0, feed.Subscribers())
}

func TestForwarder_PublishErrorKeepsRunning(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	fw := NewForwarder(pub, "", logging.Discard())
	feed := New(10)
	sub := feed.Subscribe()

	done := make(chan struct{})
	go func() {
		fw.Run(context.Background(), sub)
		close(done)
	}()

	feed.Publish(Envelope{Offset: 1})
	time.Sleep(20 * time.Millisecond)
	feed.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop after feed close")
	}
}
