package eventbus

import (
	"container/list"
	"sync"

	"github.com/pkg/errors"
)

// ErrStopped is returned by Front/Pop after Stop has been called and
// the queue has drained, mirroring original_source's
// InterruptedException on a stopped MessageQueue.
var ErrStopped = errors.New("event queue stopped")

// Queue is a single bounded FIFO an observer subscribes to. Push is
// called by the core façade while holding the core lock; Front/Pop are
// called by the observer's own goroutine and may block.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    *list.List
	capacity int
	stopped  bool
}

// NewQueue creates a Queue bounded at capacity. A non-positive capacity
// means unbounded.
func NewQueue(capacity int) *Queue {
	q := &Queue{items: list.New(), capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends msg, dropping the oldest entry first if the queue is at
// capacity. Pushing after Stop is a no-op.
func (q *Queue) Push(msg Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	if q.capacity > 0 && q.items.Len() >= q.capacity {
		q.items.Remove(q.items.Front())
	}
	q.items.PushBack(msg)
	q.cond.Signal()
}

// Front blocks until an item is available, the queue is stopped, or
// the queue was already stopped with nothing left to drain. It does
// not remove the item; pair with Pop.
func (q *Queue) Front() (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.stopped {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return Event{}, ErrStopped
	}
	return q.items.Front().Value.(Event), nil
}

// Pop removes the front item. Callers typically call Front then Pop
// once they've finished handling the event.
func (q *Queue) Pop() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		if q.stopped {
			return ErrStopped
		}
		return errors.New("pop on empty queue")
	}
	q.items.Remove(q.items.Front())
	return nil
}

// Stop wakes every blocked Front call with ErrStopped once the queue
// has drained, and makes future Push calls no-ops.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	q.cond.Broadcast()
}

// Bus fans a Push out to every currently-registered subscriber queue,
// all while the caller holds the core lock (per spec section 4.H).
type Bus struct {
	mu          sync.Mutex
	subscribers []*Queue
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers and returns a new bounded queue.
func (b *Bus) Subscribe(capacity int) *Queue {
	q := NewQueue(capacity)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, q)
	b.mu.Unlock()
	return q
}

// Publish pushes msg to every subscriber.
func (b *Bus) Publish(msg Event) {
	b.mu.Lock()
	subs := make([]*Queue, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, q := range subs {
		q.Push(msg)
	}
}

// Stop stops every subscriber queue, e.g. on core shutdown.
func (b *Bus) Stop() {
	b.mu.Lock()
	subs := make([]*Queue, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, q := range subs {
		q.Stop()
	}
}
