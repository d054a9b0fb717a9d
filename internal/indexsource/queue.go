package indexsource

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/trackerr"
)

// job is one unit of work: build the k-d tree for FrameIndex from
// Frame. FrameIndex < 0 is a poison pill signalling worker shutdown.
type job struct {
	FrameIndex int
	Frame      patch.Image
}

// boundedQueue is a fixed-capacity FIFO: enqueue blocks while full,
// dequeue blocks while empty. Generalizes the source's hand-rolled
// full/empty semaphore pair (design note, spec §9) into a pair of
// golang.org/x/sync/semaphore.Weighted counters: spaceSem tracks free
// slots, itemSem tracks filled slots.
type boundedQueue struct {
	mu       sync.Mutex
	items    []job
	spaceSem *semaphore.Weighted
	itemSem  *semaphore.Weighted
}

func newBoundedQueue(capacity int) *boundedQueue {
	q := &boundedQueue{
		spaceSem: semaphore.NewWeighted(int64(capacity)),
		itemSem:  semaphore.NewWeighted(int64(capacity)),
	}
	// itemSem starts with 0 permits available (queue is empty): consume
	// all of them up front so the first Dequeue blocks until Enqueue
	// releases one.
	_ = q.itemSem.Acquire(context.Background(), int64(capacity))
	return q
}

// Enqueue blocks until a free slot is available.
func (q *boundedQueue) Enqueue(ctx context.Context, j job) error {
	if err := q.spaceSem.Acquire(ctx, 1); err != nil {
		return err
	}
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()
	q.itemSem.Release(1)
	return nil
}

// Dequeue blocks until an item is available.
func (q *boundedQueue) Dequeue(ctx context.Context) (job, error) {
	if err := q.itemSem.Acquire(ctx, 1); err != nil {
		return job{}, err
	}
	return q.pop(), nil
}

// DequeueTimeout blocks until an item is available or the deadline
// passes, in which case it returns a Timeout error.
func (q *boundedQueue) DequeueTimeout(d time.Duration) (job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	j, err := q.Dequeue(ctx)
	if err != nil {
		return job{}, trackerr.New(trackerr.Timeout, "dequeue timed out")
	}
	return j, nil
}

// TryDequeue returns immediately: ok is false if the queue is empty.
func (q *boundedQueue) TryDequeue() (j job, ok bool) {
	if !q.itemSem.TryAcquire(1) {
		return job{}, false
	}
	return q.pop(), true
}

func (q *boundedQueue) pop() job {
	q.mu.Lock()
	j := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()
	q.spaceSem.Release(1)
	return j
}
