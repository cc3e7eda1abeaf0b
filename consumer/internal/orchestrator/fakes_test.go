package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/telhawk-systems/alertstream/consumer/internal/broker"
	"github.com/telhawk-systems/alertstream/consumer/internal/registry"
)

type step struct {
	msg *broker.Message
	err error
}

// fakeReceiver replays scripted steps and blocks when none are queued.
type fakeReceiver struct {
	steps   chan step
	closed  atomic.Bool
	commits atomic.Int32
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{steps: make(chan step, 64)}
}

func (r *fakeReceiver) Receive(ctx context.Context) (*broker.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s := <-r.steps:
		return s.msg, s.err
	}
}

func (r *fakeReceiver) Commit(context.Context, *broker.Message) error {
	r.commits.Add(1)
	return nil
}

func (r *fakeReceiver) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *fakeReceiver) send(topic string, offset int64, payload []byte) {
	r.steps <- step{msg: &broker.Message{Topic: topic, Offset: offset, Value: payload}}
}

func (r *fakeReceiver) fail(err error) {
	r.steps <- step{err: err}
}

// fakeFactory hands out one receiver per source and remembers them.
type fakeFactory struct {
	mu        sync.Mutex
	receivers map[uuid.UUID]*fakeReceiver
	opens     int
	failOpens int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{receivers: make(map[uuid.UUID]*fakeReceiver)}
}

func (f *fakeFactory) NewReceiver(_ context.Context, src registry.SourceConfig) (broker.Receiver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.failOpens > 0 {
		f.failOpens--
		return nil, errors.New("broker unreachable")
	}
	r, ok := f.receivers[src.ID]
	if !ok || r.closed.Load() {
		r = newFakeReceiver()
		f.receivers[src.ID] = r
	}
	return r, nil
}

// receiver returns the receiver for id, creating it ahead of the worker so
// tests can queue steps before it connects.
func (f *fakeFactory) receiver(id uuid.UUID) *fakeReceiver {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receivers[id]
	if !ok {
		r = newFakeReceiver()
		f.receivers[id] = r
	}
	return r
}

func (f *fakeFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

var _ broker.Factory = (*fakeFactory)(nil)
