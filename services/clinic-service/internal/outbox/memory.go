package outbox

import (
	"context"
	"sync"
)

// MemoryQueue keeps events in process. It backs tests and runs without a
// database.
type MemoryQueue struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (q *MemoryQueue) Enqueue(_ context.Context, evt Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.events = append(q.events, evt)
	return nil
}

func (q *MemoryQueue) Events() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Event(nil), q.events...)
}
