package livestate

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of functions, run in order by a single
// goroutine. Pushes never block, which allows store callbacks (which may be
// invoked synchronously while engine locks are held) to enqueue work freely.
type queue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	wakeCh chan struct{} // Buffered (cap 1) signal of new items.
}

func newQueue() *queue { return &queue{wakeCh: make(chan struct{}, 1)} }

// push |fn| to the queue, returning false if the queue is closed.
func (q *queue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()

	q.wake()
	return true
}

// close the queue to further pushes. Queued items are still run.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default: // Already signaled.
	}
}

// serve runs queued functions in order, until the queue is closed and empty.
func (q *queue) serve() {
	for {
		q.mu.Lock()
		var items, closed = q.items, q.closed
		q.items = nil
		q.mu.Unlock()

		for _, fn := range items {
			fn()
		}
		if len(items) == 0 {
			if closed {
				return
			}
			<-q.wakeCh
		}
	}
}

// drain blocks until every function queued prior to drain, and every
// function they themselves queued, has run.
func (q *queue) drain(ctx context.Context) error {
	for {
		var emptyCh = make(chan bool, 1)
		if !q.push(func() { emptyCh <- q.len() == 0 }) {
			return ErrClosed
		}
		select {
		case empty := <-emptyCh:
			if empty {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
