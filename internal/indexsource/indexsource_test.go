package indexsource

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/projector"
)

// fakeFrameSource hands out deterministic random RGB frames, all the
// same size, so BuildFromFrame has something real to chew on.
type fakeFrameSource struct {
	w, h, n int
	frames  []*patch.Frame
}

func newFakeFrameSource(n, w, h int, seed int64) *fakeFrameSource {
	r := rand.New(rand.NewSource(seed))
	s := &fakeFrameSource{w: w, h: h, n: n}
	for i := 0; i < n; i++ {
		pix := make([]byte, w*h*patch.PixelSize)
		r.Read(pix)
		s.frames = append(s.frames, patch.NewFrame(w, h, patch.PixelSize, pix))
	}
	return s
}

func (s *fakeFrameSource) NumFrames() int { return s.n }
func (s *fakeFrameSource) Width() int     { return s.w }
func (s *fakeFrameSource) Height() int    { return s.h }
func (s *fakeFrameSource) Frame(i int) (patch.Image, error) {
	return s.frames[i], nil
}

func fitTestProjector(t *testing.T) *projector.Projector {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	const pw, ph = 4, 4
	var training []patch.Image
	for i := 0; i < 20; i++ {
		pix := make([]byte, pw*ph*patch.PixelSize)
		r.Read(pix)
		training = append(training, patch.NewFrame(pw, ph, patch.PixelSize, pix))
	}
	proj, err := projector.Fit(4, training, false)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return proj
}

func TestMemorySourceAllFramesReady(t *testing.T) {
	const n = 6
	frames := newFakeFrameSource(n, 16, 16, 1)
	proj := fitTestProjector(t)

	src := NewMemorySource(frames, proj, 2, 3)
	defer src.Close()

	for i := 0; i < n; i++ {
		tree, err := src.Get(context.Background(), i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if tree == nil {
			t.Fatalf("Get(%d): nil tree", i)
		}
		if !src.IsReady(i) {
			t.Fatalf("IsReady(%d) false after Get returned", i)
		}
	}
}

func TestMemorySourceSubscribeMonotonic(t *testing.T) {
	const n = 10
	frames := newFakeFrameSource(n, 16, 16, 2)
	proj := fitTestProjector(t)

	var mu sync.Mutex
	var counts []int
	var finished bool
	done := make(chan struct{})

	src := NewMemorySource(frames, proj, 2, 4)
	defer src.Close()

	src.Subscribe(func(c int) {
		mu.Lock()
		counts = append(counts, c)
		// The final callback repeats n after the last advance reached it.
		if c == n && !finished {
			finished = true
			close(done)
		}
		mu.Unlock()
	})

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	mu.Lock()
	defer mu.Unlock()
	prev := 0
	for _, c := range counts {
		if c < prev {
			t.Fatalf("progress count not monotonic: %v", counts)
		}
		prev = c
	}
	if counts[len(counts)-1] != n {
		t.Fatalf("final count = %d, want %d", counts[len(counts)-1], n)
	}
}

func TestFileSourceBuildsThenLoadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	const n = 4
	frames := newFakeFrameSource(n, 16, 16, 3)
	proj := fitTestProjector(t)

	first := NewFileSource(frames, proj, 2, 2, dir)
	for i := 0; i < n; i++ {
		if _, err := first.Get(context.Background(), i); err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
	}
	first.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d persisted index files, got %d", n, len(entries))
	}

	second := NewFileSource(frames, proj, 2, 2, dir)
	defer second.Close()
	for i := 0; i < n; i++ {
		tree, err := second.Get(context.Background(), i)
		if err != nil {
			t.Fatalf("Get(%d) after reload: %v", i, err)
		}
		if len(tree.GetIndices()) == 0 {
			t.Fatalf("reloaded tree %d has no indices", i)
		}
	}
}

func TestMemorySourceCloseDuringInFlightWorkDoesNotDeadlock(t *testing.T) {
	const n = 50
	frames := newFakeFrameSource(n, 32, 32, 4)
	proj := fitTestProjector(t)

	src := NewMemorySource(frames, proj, 1, 4)
	_, _ = src.Get(context.Background(), 0)
	src.Close()
}
