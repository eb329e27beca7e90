package event

import (
	"sync"

	"github.com/telnet2/go-copilot/pkg/types"
)

// Queue is an unbounded FIFO of events with blocking pop.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []types.Event
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Push(evt types.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, evt)
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed and
// drained.
func (q *Queue) Pop() (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	evt := q.items[0]
	q.items = q.items[1:]
	return evt, true
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
