/*
Package chat contains the concurrent core of the chat server.

This file defines the Broadcaster, a fan-out queue in which every subscriber owns a
bounded buffer and its own read cursor starting at subscription time. A full buffer
drops its oldest entry, so a slow subscriber never blocks publishers or the other
subscribers.
*/
package chat

import (
	"sync"
	"sync/atomic"

	"linechat/internal/app/protocol"
)

// Broadcaster distributes protocol messages to all current subscribers.
type Broadcaster struct {
	// mu serializes Publish, Subscribe and unsubscribe, which fixes one
	// publication order seen by every subscriber.
	mu sync.Mutex

	subscribers map[uint64]*Subscription
	nextID      uint64
	capacity    int
	closed      bool

	// dropped counts messages discarded across all subscribers.
	dropped atomic.Int64
}

// Subscription is one subscriber's view of a Broadcaster.
type Subscription struct {
	id      uint64
	ch      chan protocol.Message
	owner   *Broadcaster
	dropped atomic.Int64
}

// NewBroadcaster creates a Broadcaster whose subscribers buffer up to capacity messages.
func NewBroadcaster(capacity int) *Broadcaster {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster{
		subscribers: make(map[uint64]*Subscription),
		capacity:    capacity,
	}
}

// Subscribe registers a new subscriber. It receives only messages published
// after this call. Subscribing to a closed Broadcaster yields a closed channel.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:    b.nextID,
		ch:    make(chan protocol.Message, b.capacity),
		owner: b,
	}
	b.nextID++

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subscribers[sub.id] = sub
	return sub
}

// Publish offers msg to every subscriber without blocking and returns the
// number of subscribers it was queued for.
func (b *Broadcaster) Publish(msg protocol.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	for _, sub := range b.subscribers {
		sub.offer(msg)
	}
	return len(b.subscribers)
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns the total number of messages discarded for slow subscribers.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription. Later publications are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(sub.ch)
	}
}

// offer queues msg, evicting the oldest entries while the buffer is full.
// Callers hold the owner's mutex, so only the consumer competes for the buffer.
func (s *Subscription) offer(msg protocol.Message) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}

		select {
		case <-s.ch:
			s.dropped.Add(1)
			s.owner.dropped.Add(1)
		default:
		}
	}
}

// C returns the channel of messages. It is closed by Close or by the
// Broadcaster shutting down.
func (s *Subscription) C() <-chan protocol.Message {
	return s.ch
}

// Dropped returns how many messages this subscriber lost to overflow.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.owner.unsubscribe(s)
}
