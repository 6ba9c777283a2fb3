// Package util provides a lock-free Multi-Producer Single-Consumer (MPSC) mailbox
// that serves as the inbox of a process.
//
// Features and Guarantees:
//
//   - Lock-Free: producers append with atomic compare-and-swap, no mutex on the hot path
//   - Unbounded Size: the mailbox grows as needed, limited only by available memory
//   - Per-Producer FIFO: values pushed sequentially by one goroutine are popped in that order
//   - Non-Blocking Receive: TryPop never blocks, Wait() offers a wake-up channel for consumers
//     that want to suspend instead of polling
//   - Single Consumer: only one goroutine may call TryPop
package util

import (
	"runtime"
	"sync/atomic"
)

// node represents a single element in the mailbox
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Mailbox is a lock-free multi-producer single-consumer FIFO.
// The linked list always starts with a sentinel node; head is owned by the
// consumer, tail is shared by all producers.
type Mailbox[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	notify chan struct{}
	closed atomic.Bool
	size   atomic.Int64
}

// NewMailbox creates a new empty mailbox
func NewMailbox[T any]() *Mailbox[T] {
	sentinel := &node[T]{}

	m := &Mailbox[T]{
		// buffered so a producer never blocks on a consumer that is busy
		notify: make(chan struct{}, 1),
	}
	m.head.Store(sentinel)
	m.tail.Store(sentinel)
	return m
}

// Push appends a value to the mailbox.
// Returns false if the mailbox is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Mailbox[T]) Push(value T) bool {
	if m.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}
	var backoff uint8 = 0

	for {
		tailNode := m.tail.Load()
		next := tailNode.next.Load()

		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// may fail if another producer already advanced the tail, which is fine
				m.tail.CompareAndSwap(tailNode, newNode)
				m.size.Add(1)
				m.signal()
				return true
			}
		} else {
			// help a producer that appended but did not advance the tail yet
			m.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention:
		  - spin with Gosched for the first retries
		  - afterwards yield once per retry
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// TryPop removes and returns the oldest value without blocking.
// The boolean is false if the mailbox is empty.
//
// Thread-safety: Only a single consumer goroutine may call TryPop.
func (m *Mailbox[T]) TryPop() (T, bool) {
	var zero T

	head := m.head.Load()
	next := head.next.Load()
	if next == nil {
		return zero, false
	}

	value := next.value
	// next becomes the new sentinel
	m.head.Store(next)
	next.value = zero
	m.size.Add(-1)

	return value, true
}

// Wait returns a channel that receives a value after a Push.
// A receive does not guarantee that TryPop succeeds (another wake-up may have
// been coalesced), consumers must drain with TryPop until it reports empty.
func (m *Mailbox[T]) Wait() <-chan struct{} {
	return m.notify
}

// Close closes the mailbox, preventing further pushes.
// Values already in the mailbox can still be popped.
func (m *Mailbox[T]) Close() {
	m.closed.Store(true)
	m.signal()
}

// IsClosed returns true if the mailbox is closed.
func (m *Mailbox[T]) IsClosed() bool {
	return m.closed.Load()
}

// Len returns the number of values in the mailbox. The result is only a
// snapshot under concurrent pushes.
func (m *Mailbox[T]) Len() int {
	return int(m.size.Load())
}

// signal wakes up a waiting consumer without blocking.
func (m *Mailbox[T]) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
