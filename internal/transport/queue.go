package transport

import (
	"sync"
)

// Queue runs submitted work one item at a time on a single goroutine.
//
// Transports push inbound deliveries through a Queue so that handlers observe
// messages in arrival order even when the underlying client invokes its
// callbacks concurrently.
type Queue struct {
	mu     sync.RWMutex
	closed bool
	q      chan func()
	done   chan struct{}
}

// NewQueue starts a queue with the given buffer size.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	q := &Queue{
		q:    make(chan func(), size),
		done: make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for fn := range q.q {
			if fn != nil {
				fn()
			}
		}
	}()
	return q
}

// Do schedules fn. It blocks while the buffer is full and returns
// ErrNotConnected once the queue is closed.
func (q *Queue) Do(fn func()) error {
	if fn == nil {
		return nil
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrNotConnected
	}
	q.q <- fn
	return nil
}

// Close stops accepting work. Work already queued still runs.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.q)
}

// Done is closed after Close once all queued work has run.
func (q *Queue) Done() <-chan struct{} { return q.done }
