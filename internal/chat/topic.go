// Package chat holds the room registry and the per-room broadcast topic.
package chat

import (
	"context"
	"sync"
)

// Topic is a bounded multi-producer, multi-consumer broadcast channel.
//
// Every message is written once into a fixed ring of capacity slots and read
// by each attached Receiver at its own pace. Publishing never waits for
// receivers; a receiver that falls more than capacity messages behind is told
// how many it missed and continues from the oldest retained message.
type Topic[T any] struct {
	mu        sync.Mutex
	ring      []T
	tail      uint64 // sequence number of the next published message
	receivers int
	closed    bool
	// notify is closed and replaced on every publish and on Close.
	notify chan struct{}
}

// NewTopic creates a topic retaining up to capacity messages.
//
// Postcondition: Capacity() >= 1; values below 1 are raised to 1.
func NewTopic[T any](capacity int) *Topic[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Topic[T]{
		ring:   make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Capacity returns the number of messages the topic retains.
func (t *Topic[T]) Capacity() int {
	return len(t.ring)
}

// Receivers returns the number of attached receivers.
func (t *Topic[T]) Receivers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receivers
}

// Publish appends msg and wakes all waiting receivers.
//
// Postcondition: Returns the number of receivers attached at publish time.
// With no receivers, or after Close, msg is discarded and 0 is returned.
func (t *Topic[T]) Publish(msg T) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.receivers == 0 {
		return 0
	}
	t.ring[t.tail%uint64(len(t.ring))] = msg
	t.tail++
	close(t.notify)
	t.notify = make(chan struct{})
	return t.receivers
}

// Subscribe attaches a receiver positioned at the current tail. It observes
// only messages published after this call.
//
// A receiver subscribed to a closed topic returns ErrTopicClosed immediately.
func (t *Topic[T]) Subscribe() *Receiver[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivers++
	return &Receiver[T]{topic: t, next: t.tail}
}

// Close marks the topic closed and wakes all waiters. Idempotent.
//
// Receivers drain what is still retained for them, then get ErrTopicClosed.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.notify)
}

// oldest returns the sequence number of the oldest retained message.
//
// Precondition: t.mu is held.
func (t *Topic[T]) oldest() uint64 {
	n := uint64(len(t.ring))
	if t.tail < n {
		return 0
	}
	return t.tail - n
}

// Receiver is one subscriber's cursor into a Topic. A Receiver must not be
// used from more than one goroutine at a time.
type Receiver[T any] struct {
	topic    *Topic[T]
	next     uint64
	detached bool
}

// Recv blocks until the next message is available, the topic is closed, the
// receiver has lagged, or ctx is done.
//
// Postcondition: On lag returns a *LaggedError and moves the cursor to the
// oldest retained message; the following Recv resumes from there.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	t := r.topic
	for {
		t.mu.Lock()
		if r.detached {
			t.mu.Unlock()
			return zero, ErrReceiverClosed
		}
		if r.next < t.tail {
			if oldest := t.oldest(); r.next < oldest {
				skipped := oldest - r.next
				r.next = oldest
				t.mu.Unlock()
				return zero, &LaggedError{Skipped: skipped}
			}
			msg := t.ring[r.next%uint64(len(t.ring))]
			r.next++
			t.mu.Unlock()
			return msg, nil
		}
		if t.closed {
			t.mu.Unlock()
			return zero, ErrTopicClosed
		}
		wait := t.notify
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// Close detaches the receiver from its topic. Idempotent.
func (r *Receiver[T]) Close() {
	t := r.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.detached {
		return
	}
	r.detached = true
	t.receivers--
}
