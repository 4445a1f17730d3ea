package core

import (
	"container/heap"
	"sync"
	"time"
)

// RequeueEntry is a scheduled re-delivery of an entity. Kind encodes
// which dispatcher path the re-delivery takes; Owner names the
// registration whose dispatcher scheduled it, so the host can route
// the entry back without inspecting the entity.
type RequeueEntry struct {
	Owner  string
	Entity Entity
	Kind   WatchEventType
	DueAt  time.Time
}

// requeueItem wraps an entry with heap bookkeeping. seq breaks due
// time ties in enqueue order.
type requeueItem struct {
	entry RequeueEntry
	seq   uint64
	index int
}

type requeueHeap []*requeueItem

func (h requeueHeap) Len() int { return len(h) }

func (h requeueHeap) Less(i, j int) bool {
	if h[i].entry.DueAt.Equal(h[j].entry.DueAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].entry.DueAt.Before(h[j].entry.DueAt)
}

func (h requeueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requeueHeap) Push(x any) {
	item := x.(*requeueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *requeueHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// RequeueQueue schedules delayed re-delivery of entities. It holds at
// most one pending entry per uid; enqueueing a second entry replaces
// the first. Entries are yielded on the Drain channel in due-time
// order, ties broken by enqueue order. The queue suspends between due
// times and wakes immediately when an earlier-due entry is inserted.
type RequeueQueue struct {
	mu    sync.Mutex
	items requeueHeap
	byUID map[string]*requeueItem
	seq   uint64

	wake      chan struct{}
	out       chan RequeueEntry
	done      chan struct{}
	closeOnce sync.Once
}

// NewRequeueQueue returns a running queue. Callers must Close it to
// release the pump goroutine.
func NewRequeueQueue() *RequeueQueue {
	q := &RequeueQueue{
		byUID: make(map[string]*requeueItem),
		wake:  make(chan struct{}, 1),
		out:   make(chan RequeueEntry),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules delivery of entity at now + delay under the given
// kind on behalf of owner. An existing entry for the same uid is
// replaced.
func (q *RequeueQueue) Enqueue(owner string, entity Entity, kind WatchEventType, delay time.Duration) error {
	select {
	case <-q.done:
		return &ErrQueueClosed{}
	default:
	}

	q.mu.Lock()
	if old, ok := q.byUID[entity.UID()]; ok {
		heap.Remove(&q.items, old.index)
	}

	q.seq++
	item := &requeueItem{
		entry: RequeueEntry{
			Owner:  owner,
			Entity: entity,
			Kind:   kind,
			DueAt:  time.Now().Add(delay),
		},
		seq: q.seq,
	}
	heap.Push(&q.items, item)
	q.byUID[entity.UID()] = item
	q.mu.Unlock()

	q.signal()
	return nil
}

// Remove drops any pending entry for the entity's uid. It is
// idempotent.
func (q *RequeueQueue) Remove(entity Entity) {
	q.mu.Lock()
	if item, ok := q.byUID[entity.UID()]; ok {
		heap.Remove(&q.items, item.index)
		delete(q.byUID, entity.UID())
	}
	q.mu.Unlock()
}

// Drain returns the channel on which due entries are delivered. The
// channel is closed when the queue is closed.
func (q *RequeueQueue) Drain() <-chan RequeueEntry {
	return q.out
}

// Len returns the number of pending entries.
func (q *RequeueQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close cancels waiters and releases the pump goroutine. It is safe
// to call multiple times.
func (q *RequeueQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func (q *RequeueQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the pump goroutine: it sleeps until the earliest due time,
// pops due entries, and delivers them on out.
func (q *RequeueQueue) run() {
	defer close(q.out)

	for {
		q.mu.Lock()
		var wait time.Duration = -1
		if len(q.items) > 0 {
			top := q.items[0]
			now := time.Now()
			if !top.entry.DueAt.After(now) {
				heap.Pop(&q.items)
				delete(q.byUID, top.entry.Entity.UID())
				entry := top.entry
				q.mu.Unlock()

				select {
				case q.out <- entry:
				case <-q.done:
					return
				}
				continue
			}
			wait = top.entry.DueAt.Sub(now)
		}
		q.mu.Unlock()

		if wait < 0 {
			select {
			case <-q.wake:
			case <-q.done:
				return
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-q.wake:
			timer.Stop()
		case <-q.done:
			timer.Stop()
			return
		}
	}
}
