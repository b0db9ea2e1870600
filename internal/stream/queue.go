package stream

import (
	"sync"

	"github.com/gammazero/deque"
)

// sendQueue is a bounded outbound queue that drops its oldest frame when full.
type sendQueue struct {
	mu     sync.Mutex
	items  deque.Deque[[]byte]
	limit  int
	closed bool
	notify chan struct{}
}

func newSendQueue(limit int) *sendQueue {
	if limit < 1 {
		limit = 1
	}
	return &sendQueue{
		items:  deque.Deque[[]byte]{},
		limit:  limit,
		notify: make(chan struct{}, 1),
	}
}

// push enqueues a frame. It reports whether an older frame was dropped.
func (q *sendQueue) push(frame []byte) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.items.Len() >= q.limit {
		q.items.PopFront()
		dropped = true
	}
	q.items.PushBack(frame)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

// drain removes and returns every queued frame in order.
func (q *sendQueue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, 0, q.items.Len())
	for q.items.Len() > 0 {
		out = append(out, q.items.PopFront())
	}
	return out
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *sendQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items.Clear()
}
