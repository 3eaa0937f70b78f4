package shared

import "sync"

// Broadcaster fans snapshots of type T out to subscribers.
//
// Each subscriber owns a single-slot channel. Publish never blocks: a pending value
// the subscriber has not read yet is replaced by the newer one, so a slow reader
// always observes the latest state rather than a backlog.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[string]chan T
}

// NewBroadcaster creates an empty [Broadcaster].
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[string]chan T)}
}

// Subscribe registers a new subscriber and returns its id and receive channel.
func (b *Broadcaster[T]) Subscribe() (string, <-chan T) {
	id := GenerateID()
	ch := make(chan T, 1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel. Unknown ids are ignored.
func (b *Broadcaster[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers v to every subscriber without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
			// Drop the stale value; we are the only sender so the slot is free afterwards.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

// Close unsubscribes everyone.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
