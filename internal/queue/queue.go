package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Queue is an unbounded in-memory FIFO shared by all chats. It is not
// persisted; a restart starts empty.
type Queue struct {
	mu    sync.Mutex
	items []Request
	ready chan struct{}
	now   func() time.Time
}

func New() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		now:   time.Now,
	}
}

// Enqueue appends req to the tail and returns its 1-based position.
// ID and EnqueuedAt are filled in when empty. It never fails.
func (q *Queue) Enqueue(req Request) (Request, int) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = q.now().UTC()
	}

	q.mu.Lock()
	q.items = append(q.items, req)
	pos := len(q.items)
	q.mu.Unlock()

	// Edge signal; a pending signal already covers this push.
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return req, pos
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Request{}, false
	}
	head := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	return head, true
}

// Ready fires after an Enqueue. Consumers must re-check with Pop, since one
// signal may stand for several pushes.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Clear drops every pending request and reports how many were removed.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	return n
}

// Len is the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns the pending requests head first.
func (q *Queue) Snapshot() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Request(nil), q.items...)
}
