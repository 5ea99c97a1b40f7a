package events

import (
	"sync"
	"time"
)

const (
	TypeUploaded      = "document.uploaded"
	TypeStatusChanged = "document.status_changed"
)

// Event describes a document lifecycle change.
type Event struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"documentId"`
	Name       string    `json:"name,omitempty"`
	Status     string    `json:"status"`
	Previous   string    `json:"previous,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(e Event)
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	next   uint64
	buffer int
}

// NewBroker returns a broker giving each subscriber a buffer of size buffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: make(map[uint64]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel func closes the
// channel and is safe to call more than once.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with buffer space.
func (b *Broker) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var _ Publisher = (*Broker)(nil)
