package indexsource

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ztracker/core/internal/frameio"
	"github.com/ztracker/core/internal/kdtree"
	"github.com/ztracker/core/internal/projector"
)

// MemorySource builds every frame's k-d tree in the background and
// keeps the results only in memory (spec §4.4): one producer walks the
// frame source in order feeding a bounded queue, W workers drain it and
// fulfil the corresponding slot.
type MemorySource struct {
	*base
}

// NewMemorySource starts the producer and worker goroutines and
// returns immediately; frames become ready asynchronously.
func NewMemorySource(frames frameio.FrameSource, proj *projector.Projector, pixelStep, workers int) *MemorySource {
	b := newBase(frames, proj, pixelStep, workers)
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	s := &MemorySource{base: b}
	go s.run(ctx, workers)
	return s
}

func (s *MemorySource) run(ctx context.Context, workers int) {
	defer close(s.done)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			for w := 0; w < workers; w++ {
				_ = s.queue.Enqueue(context.Background(), job{FrameIndex: -1})
			}
		}()
		for i := 0; i < s.NumFrames(); i++ {
			frame, err := s.frames.Frame(i)
			if err != nil {
				s.slots[i].fulfill(nil, err)
				s.advanceProgress()
				continue
			}
			if err := s.queue.Enqueue(gctx, job{FrameIndex: i, Frame: frame}); err != nil {
				return nil
			}
		}
		return nil
	})

	// Workers drain to completion on poison pills only: they never abandon
	// queued items on ctx cancellation, since the producer's cleanup above
	// enqueues the pills with an uncancellable context and relies on the
	// queue actually freeing up.
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return s.worker(context.Background())
		})
	}

	_ = g.Wait()
	s.finalProgress()
}

func (s *MemorySource) worker(ctx context.Context) error {
	for {
		j, err := s.queue.Dequeue(ctx)
		if err != nil {
			return nil
		}
		if j.FrameIndex < 0 {
			return nil
		}
		tree, err := kdtree.BuildFromFrame(j.Frame, s.proj, s.pixelStep)
		if err != nil {
			logFrameFailure(j.FrameIndex, err)
		}
		s.slots[j.FrameIndex].fulfill(tree, err)
		s.advanceProgress()
	}
}
