package domain

import "sync"

// Subscription is a live stream of full snapshots of an ordered collection.
// Every delivery carries the complete current set, not a diff. Deliveries
// are monotonically non-decreasing in commit order within one subscription;
// nothing is guaranteed across subscriptions.
//
// The buffer is latest-wins with capacity one: a slow consumer never blocks
// the publisher and never observes a snapshot older than one it could have
// already read.
type Subscription[T any] struct {
	updates chan []T

	mu       sync.Mutex
	closed   bool
	onCancel func()
}

// NewSubscription builds a subscription whose Unsubscribe runs onCancel
// exactly once to release the underlying watch resources.
func NewSubscription[T any](onCancel func()) *Subscription[T] {
	return &Subscription[T]{
		updates:  make(chan []T, 1),
		onCancel: onCancel,
	}
}

// Updates is the delivery channel. It is closed after Unsubscribe.
func (s *Subscription[T]) Updates() <-chan []T { return s.updates }

// Publish hands a new snapshot to the subscriber, replacing any undelivered
// older one. Publishing after Unsubscribe is a no-op.
func (s *Subscription[T]) Publish(snapshot []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.updates: // drop the stale snapshot
	default:
	}
	s.updates <- snapshot
}

// Unsubscribe stops all further delivery and releases server-side watch
// resources. Idempotent.
func (s *Subscription[T]) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	cancel := s.onCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
