package main

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/alertstream/common/messaging"
	"github.com/telhawk-systems/alertstream/consumer/internal/alert"
	"github.com/telhawk-systems/alertstream/consumer/internal/classifier"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

func classify(t *testing.T, payload []byte) (classifier.Result, error) {
	t.Helper()
	doc, err := alert.Decode(payload)
	require.NoError(t, err)
	return classifier.Classify(doc, registry.DataTypeNone)
}

func TestGeneratedAlertsClassify(t *testing.T) {
	g := NewGenerator(42)

	for i := 0; i < 25; i++ {
		payload, key, err := g.Next(KindEDR)
		require.NoError(t, err)
		res, err := classify(t, payload)
		require.NoError(t, err)
		assert.Equal(t, classifier.KindEDR, res.Kind)
		assert.Equal(t, res.EDR.AlertKey(), key)

		payload, key, err = g.Next(KindNGAV)
		require.NoError(t, err)
		res, err = classify(t, payload)
		require.NoError(t, err)
		assert.Equal(t, classifier.KindNGAV, res.Kind)
		assert.Equal(t, res.NGAV.AlertKey(), key)
	}
}

func TestGeneratedUnknownIsUnrecognized(t *testing.T) {
	payload, _, err := NewGenerator(7).Next(KindUnknown)
	require.NoError(t, err)
	_, err = classify(t, payload)
	assert.ErrorIs(t, err, classifier.ErrUnrecognized)
}

func TestGeneratorMixedProducesBoth(t *testing.T) {
	g := NewGenerator(3)
	seen := map[classifier.Kind]int{}
	for i := 0; i < 100; i++ {
		payload, _, err := g.Next(KindMixed)
		require.NoError(t, err)
		res, err := classify(t, payload)
		require.NoError(t, err)
		seen[res.Kind]++
	}
	assert.Positive(t, seen[classifier.KindEDR])
	assert.Positive(t, seen[classifier.KindNGAV])
}

func TestGeneratorIsDeterministic(t *testing.T) {
	fixed := func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	a, b := NewGenerator(99), NewGenerator(99)
	a.now, b.now = fixed, fixed

	for i := 0; i < 5; i++ {
		pa, _, err := a.Next(KindMixed)
		require.NoError(t, err)
		pb, _, err := b.Next(KindMixed)
		require.NoError(t, err)
		assert.JSONEq(t, string(pa), string(pb))
	}
}

func TestGeneratorRejectsUnknownKind(t *testing.T) {
	_, _, err := NewGenerator(1).Next("xdr")
	assert.Error(t, err)
}

func TestGeneratedTimestampsParse(t *testing.T) {
	e := NewGenerator(5).EDR()
	created, err := time.Parse(time.RFC3339Nano, e.CreateTime)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Hour+time.Minute)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (p *recordingPublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestSendGeneratedOverNATS(t *testing.T) {
	pub := &recordingPublisher{}
	s := &natsSender{pub: pub, subject: "alerts.edr"}

	sent, err := sendGenerated(context.Background(), s, NewGenerator(11), KindEDR, 3, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	require.Len(t, pub.msgs, 3)
	for _, m := range pub.msgs {
		assert.Equal(t, "alerts.edr", m.Subject)
		assert.NotEmpty(t, m.Metadata[HeaderAlertKey])
	}
}

func TestSendGeneratedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sent, err := sendGenerated(ctx, &natsSender{pub: &recordingPublisher{}}, NewGenerator(1), KindNGAV, 0, time.Second, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sent)
}

func TestReplaySkipsBlankLines(t *testing.T) {
	input := "{\"a\":1}\n\n  \n{\"b\":2}\n"
	var lines []string
	err := replay(strings.NewReader(input), func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, lines)
}

func TestReplayReportsLineNumber(t *testing.T) {
	err := replay(strings.NewReader("{}\n{}\n"), func(line []byte) error {
		return context.DeadlineExceeded
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}
