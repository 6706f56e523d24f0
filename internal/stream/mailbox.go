// Package stream provides the single-slot mailbox that connects the sensor
// adapters to the event loop.
//
// A Mailbox holds at most one pending value. Producers never block: a new
// value replaces an unread one. The consumer selects on Ready and then calls
// Take. This gives the push-based, at-most-one-in-flight delivery that the
// recognizers expect without tying the producers to the loop's pace.
package stream

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a latest-wins single-slot channel substitute. It is safe for
// concurrent use by any number of producers and one consumer.
type Mailbox[T any] struct {
	mu      sync.Mutex
	val     T
	full    bool
	notify  chan struct{}
	keep    func(pending, next T) bool
	dropped atomic.Int64
}

// Option configures a [Mailbox].
type Option[T any] func(*Mailbox[T])

// WithKeep installs a predicate consulted when a value is already pending.
// If keep(pending, next) returns true, next is discarded instead of the
// pending value.
func WithKeep[T any](keep func(pending, next T) bool) Option[T] {
	return func(m *Mailbox[T]) { m.keep = keep }
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any](opts ...Option[T]) *Mailbox[T] {
	m := &Mailbox[T]{notify: make(chan struct{}, 1)}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Put stores v, replacing any unread value. It reports whether a value was
// discarded to make room.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	discarded := m.full
	switch {
	case m.full && m.keep != nil && m.keep(m.val, v):
		// pending value stays
	default:
		m.val = v
		m.full = true
	}
	m.mu.Unlock()

	if discarded {
		m.dropped.Add(1)
	}
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return discarded
}

// Ready returns a channel that receives after a Put. A receive does not
// guarantee a value: Take may still report false if another Take won.
func (m *Mailbox[T]) Ready() <-chan struct{} { return m.notify }

// Take removes and returns the pending value.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if !m.full {
		return zero, false
	}
	v := m.val
	m.val, m.full = zero, false
	return v, true
}

// Dropped returns how many values were discarded because the consumer had
// not taken the previous one.
func (m *Mailbox[T]) Dropped() int64 { return m.dropped.Load() }
