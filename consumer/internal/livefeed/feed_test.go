package livefeed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(offset int64) Envelope {
	return Envelope{Topic: "alerts", Offset: offset, Payload: "{}", DataType: "edr"}
}

func TestFeed_PublishToSubscribers(t *testing.T) {
	f := New(10)
	a := f.Subscribe()
	b := f.Subscribe()
	assert.Equal(t, 2, f.Subscribers())

	f.Publish(env(1))

	for _, s := range []*Subscription{a, b} {
		select {
		case got := <-s.C():
			assert.Equal(t, int64(1), got.Offset)
		case <-time.After(time.Second):
			t.Fatal("envelope not delivered")
		}
	}
}

func TestFeed_PublishWithoutSubscribers(t *testing.T) {
	f := New(1)
	f.Publish(env(1))
	assert.Equal(t, 0, f.Subscribers())
}

func TestFeed_DropOldestWhenFull(t *testing.T) {
	f := New(3)
	s := f.Subscribe()

	for i := int64(1); i <= 5; i++ {
		f.Publish(env(i))
	}

	assert.Equal(t, uint64(2), s.Dropped())
	var got []int64
	for i := 0; i < 3; i++ {
		got = append(got, (<-s.C()).Offset)
	}
	assert.Equal(t, []int64{3, 4, 5}, got)
}

func TestFeed_SlowSubscriberDoesNotAffectOthers(t *testing.T) {
	f := New(2)
	slow := f.Subscribe()
	fast := f.Subscribe()

	var received []int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range fast.C() {
			received = append(received, e.Offset)
			if len(received) == 3 {
				return
			}
		}
	}()

	for i := int64(1); i <= 3; i++ {
		f.Publish(env(i))
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, []int64{1, 2, 3}, received)
	assert.Equal(t, uint64(1), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
}

func TestSubscription_Close(t *testing.T) {
	f := New(1)
	s := f.Subscribe()
	s.Close()
	s.Close()

	_, ok := <-s.C()
	assert.False(t, ok)
	assert.Equal(t, 0, f.Subscribers())

	f.Publish(env(1))
}

func TestFeed_Close(t *testing.T) {
	f := New(1)
	s := f.Subscribe()
	f.Close()
	f.Close()

	_, ok := <-s.C()
	assert.False(t, ok)
	s.Close()

	late := f.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestFeed_ConcurrentPublish(t *testing.T) {
	f := New(5)
	s := f.Subscribe()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := int64(0); i < 100; i++ {
				f.Publish(env(i))
			}
		}()
	}
	wg.Wait()

	require.Len(t, s.C(), 5)
	assert.Equal(t, uint64(395), s.Dropped())
}

func TestNew_DefaultCapacity(t *testing.T) {
	f := New(0)
	assert.Equal(t, DefaultCapacity, f.capacity)
}

func TestFeed_OnDrop(t *testing.T) {
	f := New(1)
	var drops int
	f.OnDrop(func() { drops++ })
	f.Subscribe()

	f.Publish(env(1))
	f.Publish(env(2))
	f.Publish(env(3))
	assert.Equal(t, 2, drops)
}
