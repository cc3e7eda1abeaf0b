// Package livefeed fans ingested messages out to live-tail observers without
// ever blocking ingestion.
package livefeed

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the per-subscriber buffer size.
const DefaultCapacity = 1000

// Envelope is what observers receive for every ingested message. DataType is
// the source's declared type; ClassifiedAs is what the payload turned out to be.
type Envelope struct {
	Topic        string    `json:"topic"`
	Partition    int       `json:"partition"`
	Offset       int64     `json:"offset"`
	Payload      string    `json:"payload"`
	Timestamp    time.Time `json:"timestamp"`
	SourceID     string    `json:"source_id"`
	DataType     string    `json:"data_type"`
	ClassifiedAs string    `json:"classified_as,omitempty"`
}

// RoutingType is the type used to route the envelope: the classified type
// when known, otherwise the declared one.
func (e Envelope) RoutingType() string {
	if e.ClassifiedAs != "" {
		return e.ClassifiedAs
	}
	return e.DataType
}

// Feed is a broadcast hub. Each subscriber owns a bounded buffer; when it is
// full the oldest envelope is discarded to make room.
type Feed struct {
	capacity int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	onDrop func()
}

func New(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new observer. Subscribing to a closed feed returns a
// subscription whose channel is already closed.
func (f *Feed) Subscribe() *Subscription {
	s := &Subscription{feed: f, ch: make(chan Envelope, f.capacity)}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	f.subs[s] = struct{}{}
	return s
}

// OnDrop registers fn to be called whenever an envelope is discarded.
func (f *Feed) OnDrop(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDrop = fn
}

// Publish delivers env to every subscriber. It never blocks.
func (f *Feed) Publish(env Envelope) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.subs {
		if dropped := s.offer(env); dropped > 0 && f.onDrop != nil {
			for i := 0; i < dropped; i++ {
				f.onDrop()
			}
		}
	}
}

// Subscribers returns the number of attached observers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close detaches and closes every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		s.closeLocked()
		delete(f.subs, s)
	}
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; !ok {
		return
	}
	delete(f.subs, s)
	s.closeLocked()
}

// Subscription is one observer's receive handle.
type Subscription struct {
	feed    *Feed
	ch      chan Envelope
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// C returns the receive channel. It is closed when the subscription or the
// feed is closed.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Dropped reports how many envelopes were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from its feed. Safe to call more than once.
func (s *Subscription) Close() {
	s.feed.remove(s)
}

// offer enqueues env, discarding the oldest buffered envelopes as needed. It
// returns how many were discarded.
func (s *Subscription) offer(env Envelope) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	dropped := 0
	for {
		select {
		case s.ch <- env:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
			dropped++
		default:
		}
	}
}

// closeLocked is called with the feed's write lock held.
func (s *Subscription) closeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
