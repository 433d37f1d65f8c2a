package preview

import (
	"sync"

	"github.com/reelcap/reelcap/internal/util"
)

// Broadcaster fans the recording's container bytes out to live preview
// subscribers. The fMP4 init segment is cached so late subscribers can
// start decoding: they always receive it before any media part. A
// subscriber whose channel is full is dropped rather than ever
// blocking the writer, which calls in from the recording path.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan []byte
	initSegment []byte
	closed      bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]chan []byte),
	}
}

// SetInitSegment caches the init segment and sends it to everyone
// already subscribed. Called once per writer generation; a restart
// replaces the cached segment.
func (b *Broadcaster) SetInitSegment(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.initSegment = make([]byte, len(data))
	copy(b.initSegment, data)

	for id, ch := range b.subscribers {
		select {
		case ch <- b.initSegment:
		default:
			util.GetLogger().Warn("Subscriber missed init segment (channel full)", "id", id)
		}
	}
	util.GetLogger().Debug("Preview init segment cached", "size", len(data))
}

// Subscribe registers a subscriber and returns its receive channel.
// If an init segment is cached it is queued immediately.
func (b *Broadcaster) Subscribe(id string, bufferSize int) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan []byte)
		close(ch)
		return ch
	}

	ch := make(chan []byte, bufferSize)
	b.subscribers[id] = ch

	if len(b.initSegment) > 0 {
		select {
		case ch <- b.initSegment:
		default:
			util.GetLogger().Warn("Init segment not queued to new subscriber (channel full)", "id", id)
		}
	}

	util.GetLogger().Debug("Preview subscriber added", "id", id, "total", len(b.subscribers))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Broadcast offers a media chunk to every subscriber without
// blocking. Subscribers that cannot keep up are dropped; a preview
// client that misses a moof has to rejoin at the next init segment
// anyway.
func (b *Broadcaster) Broadcast(data []byte) {
	if len(data) == 0 {
		return
	}

	// Sends stay under the read lock: Unsubscribe closes channels
	// under the write lock, so no channel can close mid-send.
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	var dropped []string
	for id, ch := range b.subscribers {
		select {
		case ch <- data:
		default:
			dropped = append(dropped, id)
		}
	}
	b.mu.RUnlock()

	if len(dropped) > 0 {
		b.mu.Lock()
		for _, id := range dropped {
			// The subscriber may have unsubscribed in the window
			// between the locks; only close what is still ours.
			if ch, ok := b.subscribers[id]; ok {
				close(ch)
				delete(b.subscribers, id)
				util.GetLogger().Warn("Dropped slow preview subscriber", "id", id)
			}
		}
		b.mu.Unlock()
	}
}

// Close shuts the broadcaster down and closes all subscriber
// channels. Further subscriptions receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[string]chan []byte)
}

// SubscriberCount returns the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
