package status

import (
	"sync"

	"github.com/roach88/storagepeer/internal/crawler"
)

// DefaultBuffer is the per-client event backlog before a client is dropped.
const DefaultBuffer = 64

type subscriber struct {
	ch chan crawler.Event
}

// Broadcaster fans crawler events out to connected clients. A client that
// falls more than its buffer behind is disconnected.
type Broadcaster struct {
	buffer int

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewBroadcaster returns a broadcaster with the given per-client buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		buffer: buffer,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish queues e for every client without blocking. Its signature
// matches crawler.WithObserver.
func (b *Broadcaster) Publish(e crawler.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			delete(b.subs, s)
			close(s.ch)
		}
	}
}

// Subscribers returns the number of connected clients.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) subscribe() *subscriber {
	s := &subscriber{ch: make(chan crawler.Event, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) unsubscribe(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}
