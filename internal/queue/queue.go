package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"reportsink/internal/models"
)

// ErrClosed is returned once the queue has been permanently closed for
// shutdown. A caller-side timeout surfaces as the caller's own ctx.Err(),
// never as ErrClosed.
var ErrClosed = errors.New("ingestion queue closed")

// Queue is the bounded ingestion buffer between the HTTP producers and the
// single persistence worker. Full-queue policy is wait, never drop: a full
// queue blocks the producer up to its own timeout instead of shedding the
// envelope.
//
// Depth is tracked on a dedicated atomic counter rather than read off the
// buffer, so health polling never contends with the enqueue/dequeue path.
type Queue struct {
	buf      chan *models.WorkItem
	capacity int

	// depth leads the buffer: it is incremented before the send and rolled
	// back on every failed path, so it can never go negative and never
	// undercounts. While producers are blocked on a full buffer the counter
	// includes them, which is exactly the overload the health monitor wants
	// to see.
	depth atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue with a fixed capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		buf:      make(chan *models.WorkItem, capacity),
		capacity: capacity,
		done:     make(chan struct{}),
	}
}

// Enqueue inserts a work item, waiting for space up to the caller's context
// deadline when the buffer is full. It returns nil on success, the caller's
// ctx.Err() on timeout/cancellation, and ErrClosed once the queue has been
// shut down. Many producers may call Enqueue concurrently.
func (q *Queue) Enqueue(ctx context.Context, item *models.WorkItem) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	q.depth.Add(1)

	// Fast path: space available right now.
	select {
	case q.buf <- item:
		return nil
	default:
	}

	// Full: wait for a slot, the caller's deadline, or shutdown.
	select {
	case q.buf <- item:
		return nil
	case <-ctx.Done():
		q.depth.Add(-1)
		return ctx.Err()
	case <-q.done:
		q.depth.Add(-1)
		return ErrClosed
	}
}

// Dequeue blocks until an item is available, the context is cancelled, or
// the queue is closed and fully drained. Exactly one consumer may call it.
func (q *Queue) Dequeue(ctx context.Context) (*models.WorkItem, error) {
	select {
	case item := <-q.buf:
		q.depth.Add(-1)
		return item, nil
	default:
	}

	select {
	case item := <-q.buf:
		q.depth.Add(-1)
		return item, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		// Closed: drain anything already accepted before reporting ErrClosed,
		// so shutdown never loses buffered envelopes.
		select {
		case item := <-q.buf:
			q.depth.Add(-1)
			return item, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Depth returns an O(1) snapshot of the buffered count. Producers waiting
// for a slot are included, so Depth can exceed Capacity while the buffer is
// full and callers are blocked.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// Capacity returns the fixed capacity set at construction.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Close permanently shuts the queue. Waiting enqueues fail with ErrClosed;
// items already buffered remain dequeueable until drained.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
