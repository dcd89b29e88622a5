package jobs

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process queue for single binary deployments and tests.
// Jobs do not survive a restart.
type MemoryQueue struct {
	mu     sync.RWMutex
	ch     chan Job
	closed bool
	done   chan struct{}
}

// NewMemoryQueue creates a queue holding at most size pending jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{
		ch:   make(chan Job, size),
		done: make(chan struct{}),
	}
}

// Enqueue adds job without blocking. A full queue is reported as ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-q.ch:
		return &Delivery{Job: job}, nil
	case <-q.done:
		// drain what was accepted before Close
		select {
		case job := <-q.ch:
			return &Delivery{Job: job}, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Len reports the number of pending jobs.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close stops accepting jobs. Pending jobs can still be dequeued.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
