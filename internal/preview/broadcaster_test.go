package preview

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterLateSubscriberGetsInitFirst(t *testing.T) {
	b := NewBroadcaster()
	b.SetInitSegment([]byte("init"))
	b.Broadcast([]byte("part1"))

	ch := b.Subscribe("late", 8)
	b.Broadcast([]byte("part2"))

	assert.Equal(t, []byte("init"), <-ch)
	assert.Equal(t, []byte("part2"), <-ch)
}

func TestBroadcasterInitPushedToExistingSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("early", 8)

	b.SetInitSegment([]byte("init"))
	assert.Equal(t, []byte("init"), <-ch)
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("slow", 1)
	b.Broadcast([]byte("a"))
	// Second chunk overflows the buffer; the subscriber is dropped
	// and its channel closed, never blocking the broadcaster.
	b.Broadcast([]byte("b"))

	assert.Equal(t, []byte("a"), <-ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcasterUnsubscribeDuringBroadcast(t *testing.T) {
	// Clients disconnect whenever they like; unsubscribing must never
	// race a live broadcast into a send on a closed channel.
	b := NewBroadcaster()

	const subscribers = 64
	for i := 0; i < subscribers; i++ {
		b.Subscribe(fmt.Sprintf("s%d", i), 1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			b.Broadcast([]byte("chunk"))
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < subscribers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			b.Unsubscribe(id)
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()
	<-done

	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("s1", 4)
	b.Unsubscribe("s1")

	_, open := <-ch
	require.False(t, open)
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe("s1", 4)
	b.Close()

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields an already-closed channel.
	ch2 := b.Subscribe("s2", 4)
	_, open = <-ch2
	assert.False(t, open)

	// Broadcast after close is a no-op.
	b.Broadcast([]byte("x"))
}
