// Package indexsource builds per-frame k-d tree indices in the
// background using a worker pool (spec §4.4). Memory-only and
// file-backed variants share the producer/worker/bounded-queue
// machinery; the file-backed variant additionally checks/writes a
// deterministic per-frame path.
package indexsource

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ztracker/core/internal/frameio"
	"github.com/ztracker/core/internal/kdtree"
	"github.com/ztracker/core/internal/projector"
)

// slot is a one-shot result cell: a frame's k-d tree, fulfilled exactly
// once, by a worker or, when the frame cannot be read or is loaded from
// disk, by the producer.
type slot struct {
	done   chan struct{}
	tree   *kdtree.Tree
	err    error
	fulfil sync.Once
}

func newSlot() *slot { return &slot{done: make(chan struct{})} }

func (s *slot) fulfill(tree *kdtree.Tree, err error) {
	s.fulfil.Do(func() {
		s.tree, s.err = tree, err
		close(s.done)
	})
}

func (s *slot) isReady() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *slot) get(ctx context.Context) (*kdtree.Tree, error) {
	select {
	case <-s.done:
		return s.tree, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Source is the contract consumed by the trace agent: indexed,
// synchronous Get, non-blocking IsReady, and a single-slot progress
// subscription.
type Source interface {
	NumFrames() int
	Get(ctx context.Context, i int) (*kdtree.Tree, error)
	IsReady(i int) bool
	Subscribe(fn func(count int))
	Close()
}

// base holds the machinery shared by the memory-only and file-backed
// variants: the slot array, the bounded work queue, the worker pool,
// and the progress subscription.
type base struct {
	frames    frameio.FrameSource
	proj      *projector.Projector
	pixelStep int
	slots     []*slot

	queue *boundedQueue

	subMu sync.Mutex
	sub   func(int)

	completedMu sync.Mutex
	completed   int

	cancel context.CancelFunc
	done   chan struct{}
}

func newBase(frames frameio.FrameSource, proj *projector.Projector, pixelStep, workers int) *base {
	n := frames.NumFrames()
	b := &base{
		frames:    frames,
		proj:      proj,
		pixelStep: pixelStep,
		slots:     make([]*slot, n),
		queue:     newBoundedQueue(workers),
		done:      make(chan struct{}),
	}
	for i := range b.slots {
		b.slots[i] = newSlot()
	}
	return b
}

func (b *base) NumFrames() int { return len(b.slots) }

func (b *base) Get(ctx context.Context, i int) (*kdtree.Tree, error) {
	return b.slots[i].get(ctx)
}

func (b *base) IsReady(i int) bool { return b.slots[i].isReady() }

func (b *base) Subscribe(fn func(count int)) {
	b.subMu.Lock()
	b.sub = fn
	b.subMu.Unlock()
}

// advanceProgress grows the completion counter while the prefix of
// ready slots has grown, and notifies the subscriber (spec §4.4). The
// subscriber is called with the counter lock held, so concurrent workers
// deliver counts in non-decreasing order.
func (b *base) advanceProgress() {
	b.completedMu.Lock()
	defer b.completedMu.Unlock()
	c := b.completed
	for c < len(b.slots) && b.slots[c].isReady() {
		c++
	}
	grew := c > b.completed
	b.completed = c

	if grew {
		b.subMu.Lock()
		fn := b.sub
		b.subMu.Unlock()
		if fn != nil {
			fn(c)
		}
	}
}

// finalProgress always fires once on completion (spec §7), equal to the
// total frame count, even if the count did not grow due to errors.
func (b *base) finalProgress() {
	b.subMu.Lock()
	fn := b.sub
	b.subMu.Unlock()
	if fn != nil {
		fn(len(b.slots))
	}
}

func (b *base) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	<-b.done
}

func logFrameFailure(frame int, err error) {
	slog.Error("frame index build failed", "frame", frame, "err", err)
}
