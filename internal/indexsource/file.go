package indexsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/ztracker/core/internal/frameio"
	"github.com/ztracker/core/internal/kdtree"
	"github.com/ztracker/core/internal/projector"
)

// FileSource is the MemorySource variant backed by on-disk caching
// (spec §4.4): each frame's tree is saved under a deterministic path,
// `<folder>/<pixelStep>.<frame>`, so a rerun over the same folder loads
// instead of rebuilding.
type FileSource struct {
	*base
	folder string
}

// NewFileSource starts the producer/worker pipeline against folder,
// loading any index already present on disk instead of rebuilding it.
func NewFileSource(frames frameio.FrameSource, proj *projector.Projector, pixelStep, workers int, folder string) *FileSource {
	b := newBase(frames, proj, pixelStep, workers)
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	s := &FileSource{base: b, folder: folder}
	go s.run(ctx, workers)
	return s
}

func (s *FileSource) indexPath(frame int) string {
	return filepath.Join(s.folder, fmt.Sprintf("%d.%d", s.pixelStep, frame))
}

func (s *FileSource) run(ctx context.Context, workers int) {
	defer close(s.done)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			for w := 0; w < workers; w++ {
				_ = s.queue.Enqueue(context.Background(), job{FrameIndex: -1})
			}
		}()
		for i := 0; i < s.NumFrames(); i++ {
			if tree, ok := s.tryLoad(i); ok {
				s.slots[i].fulfill(tree, nil)
				s.advanceProgress()
				continue
			}
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

func (s *FileSource) tryLoad(frame int) (*kdtree.Tree, bool) {
	f, err := os.Open(s.indexPath(frame))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	tree, err := kdtree.Load(f)
	if err != nil {
		return nil, false
	}
	return tree, true
}

func (s *FileSource) worker(ctx context.Context) error {
	for {
		j, err := s.queue.Dequeue(ctx)
		if err != nil {
			return nil
		}
		if j.FrameIndex < 0 {
			return nil
		}
		tree, err := kdtree.BuildFromFrame(j.Frame, s.proj, s.pixelStep)
		if err == nil {
			s.save(j.FrameIndex, tree)
		} else {
			logFrameFailure(j.FrameIndex, err)
		}
		s.slots[j.FrameIndex].fulfill(tree, err)
		s.advanceProgress()
	}
}

func (s *FileSource) save(frame int, tree *kdtree.Tree) {
	if err := os.MkdirAll(s.folder, 0o755); err != nil {
		logFrameFailure(frame, err)
		return
	}
	f, err := os.Create(s.indexPath(frame))
	if err != nil {
		logFrameFailure(frame, err)
		return
	}
	defer f.Close()
	if err := tree.Save(f); err != nil {
		logFrameFailure(frame, err)
	}
}
