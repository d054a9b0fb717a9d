package trace

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ztracker/core/internal/indexsource"
	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/projector"
)

// TraceParams bundles the key-frame candidate search parameters with
// the segment optimizer's cost weights (spec §3/§4.5, original
// TraceParameters).
type TraceParams struct {
	NumMatches          int
	MatchRatio          float64
	MaxMatchesPerFrame  int
	AppearanceThreshold float64

	LambdaD, LambdaU, LambdaO float64
	MaxOcclusionDuration      int
}

func (p TraceParams) optParams() Params {
	return Params{LambdaD: p.LambdaD, LambdaU: p.LambdaU, LambdaO: p.LambdaO, MaxOcclusionDuration: p.MaxOcclusionDuration}
}

// Handler is called twice per rebuilt segment: once when the segment
// starts optimizing, once when it finishes (spec §4.5).
type Handler func(segmentStart, segmentEnd int)

// editMsg is one message on the agent's edit queue. frame < 0 signals
// shutdown; point == nil (with params set) signals a full rerun.
type editMsg struct {
	frame  int
	point  *Point
	params *TraceParams
}

// Trace is the per-frame anchor manager and rebuild scheduler of spec
// §4.5: one actor goroutine serializes fix/occlude/reset/rerun edits,
// recomputes candidate sets, and dispatches segment optimizations to a
// cancellable worker group. Grounded in
// original_source/ztTrace/Trace.cpp's Implementation::run/change_the_trace/
// start_build/cancel_build.
type Trace struct {
	source indexsource.Source

	jobs chan editMsg
	done chan struct{}

	subMu sync.Mutex
	sub   Handler

	mu    sync.RWMutex
	trace []*Point
}

// New starts the trace agent over source (source.NumFrames() entries,
// all initially Auto) with the given initial parameters.
func New(source indexsource.Source, pars TraceParams) *Trace {
	n := source.NumFrames()
	trace := make([]*Point, n)
	for i := range trace {
		trace[i] = NewAuto()
	}
	t := &Trace{
		source: source,
		jobs:   make(chan editMsg, 64),
		done:   make(chan struct{}),
		trace:  trace,
	}
	go t.run(pars)
	return t
}

// TracePoint returns the traced object's current location at frame, or
// (zero, false) if occluded (forced or DP-selected).
func (t *Trace) TracePoint(frame int) (patch.Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trace[frame].TracePoint()
}

// IsFixed reports whether frame currently holds a user-fixed key frame.
func (t *Trace) IsFixed(frame int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trace[frame].Kind == KindKeyFrame
}

// IsForcedOccluded reports whether frame currently holds a user-forced
// occlusion.
func (t *Trace) IsForcedOccluded(frame int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trace[frame].Kind == KindOccluded
}

// Fix submits a user-fixed key frame and asynchronously starts a
// rebuild.
func (t *Trace) Fix(frame int, loc patch.Location, desc projector.Descriptor) {
	t.jobs <- editMsg{frame: frame, point: NewKeyFrame(loc, desc)}
}

// Occlude forces frame occluded and asynchronously starts a rebuild.
func (t *Trace) Occlude(frame int) {
	t.jobs <- editMsg{frame: frame, point: NewOccluded()}
}

// Reset clears any user directive for frame, returning it to Auto.
func (t *Trace) Reset(frame int) {
	t.jobs <- editMsg{frame: frame, point: NewAuto()}
}

// Rerun swaps parameters and forces a full rebuild of every segment.
func (t *Trace) Rerun(pars TraceParams) {
	p := pars
	t.jobs <- editMsg{params: &p}
}

// Subscribe installs fn as the single segment-progress handler. A nil
// fn clears the subscription. fn may be called from a different
// goroutine than the caller of Subscribe.
func (t *Trace) Subscribe(fn Handler) {
	t.subMu.Lock()
	t.sub = fn
	t.subMu.Unlock()
}

// Close sends the shutdown poison pill and waits for the agent
// goroutine and any in-flight segment builds to finish.
func (t *Trace) Close() {
	t.jobs <- editMsg{frame: -1}
	<-t.done
}

func (t *Trace) run(pars TraceParams) {
	defer close(t.done)

	var cancel context.CancelFunc
	var wg sync.WaitGroup
	cancelBuild := func() {
		if cancel != nil {
			cancel()
			wg.Wait()
			cancel = nil
		}
	}

	for {
		msg := <-t.jobs
		cancelBuild()
		if msg.frame < 0 {
			return
		}
		t.applyEdit(msg, &pars)

	drain:
		for {
			select {
			case msg2 := <-t.jobs:
				if msg2.frame < 0 {
					return
				}
				t.applyEdit(msg2, &pars)
			default:
				break drain
			}
		}

		ctx, c := context.WithCancel(context.Background())
		cancel = c
		t.startBuild(ctx, &wg, pars)
	}
}

// applyEdit mutates the trace array per one queued edit and then runs
// the full or incremental candidate recomputation the edit calls for, if
// any (spec §4.5, change_the_trace).
func (t *Trace) applyEdit(msg editMsg, pars *TraceParams) {
	if msg.params != nil {
		*pars = *msg.params
	}

	var add, all bool

	t.mu.Lock()
	switch {
	case msg.point == nil:
		add, all = true, true
	case msg.point.Kind == KindOccluded:
		add = t.trace[msg.frame].Kind == KindKeyFrame
		all = add
		t.trace[msg.frame] = NewOccluded()
	case msg.point.Kind == KindAuto:
		if t.trace[msg.frame].Kind != KindAuto {
			add, all = true, true
			t.trace[msg.frame] = NewAuto()
		}
	case msg.point.Kind == KindKeyFrame:
		add = true
		all = t.trace[msg.frame].Kind == KindKeyFrame
		t.trace[msg.frame] = msg.point
	}
	t.mu.Unlock()

	if !add {
		return
	}
	if all {
		t.fullRebuild(pars)
	} else {
		t.incrementalRebuild(msg.frame, pars)
	}
}

func (t *Trace) keyframeList() []keyframeRef {
	var out []keyframeRef
	for i, p := range t.trace {
		if p.Kind == KindKeyFrame {
			out = append(out, keyframeRef{Frame: i, Point: p})
		}
	}
	return out
}

// fullRebuild clears and recomputes every ready Auto frame's candidate
// set against every current key frame, in key-frame order.
func (t *Trace) fullRebuild(pars *TraceParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keyframes := t.keyframeList()

	for i, p := range t.trace {
		if p.Kind != KindAuto {
			continue
		}
		fresh := NewAuto()
		if t.source.IsReady(i) {
			if tree, err := t.source.Get(context.Background(), i); err == nil {
				for kfIdx, kf := range keyframes {
					matches, qerr := tree.Query(kf.Point.Descriptor, pars.NumMatches, pars.MatchRatio)
					if qerr != nil {
						continue
					}
					fresh.Matches = addMatches(fresh.Matches, keyframes, kfIdx, matches, pars.MaxMatchesPerFrame, pars.AppearanceThreshold)
				}
			}
		}
		t.trace[i] = fresh
	}
}

// incrementalRebuild merges candidates for just the newly-added key
// frame at newFrame into every ready Auto frame's existing set.
func (t *Trace) incrementalRebuild(newFrame int, pars *TraceParams) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keyframes := t.keyframeList()
	newIdx := -1
	for i, kf := range keyframes {
		if kf.Frame == newFrame {
			newIdx = i
			break
		}
	}
	if newIdx < 0 {
		return
	}
	newDesc := keyframes[newIdx].Point.Descriptor

	for i, p := range t.trace {
		if p.Kind != KindAuto || !t.source.IsReady(i) {
			continue
		}
		tree, err := t.source.Get(context.Background(), i)
		if err != nil {
			continue
		}
		matches, qerr := tree.Query(newDesc, pars.NumMatches, pars.MatchRatio)
		if qerr != nil {
			continue
		}
		p.Matches = addMatches(p.Matches, keyframes, newIdx, matches, pars.MaxMatchesPerFrame, pars.AppearanceThreshold)
	}
}

func (t *Trace) isKeyframe(i int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trace[i].Kind == KindKeyFrame
}

func (t *Trace) keyframeBoundary(i int) Boundary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.trace[i]
	return KeyFrameBoundary(p.Location, p.Descriptor)
}

// segmentEntry snapshots frame i's candidate set for the optimizer. A
// forced-occluded frame becomes an empty-candidate Auto stand-in (spec
// §4.6, "forced-occluded frames... no candidates").
func (t *Trace) segmentEntry(i int) *Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := t.trace[i]
	if p.Kind != KindAuto {
		return NewAuto()
	}
	return &Point{Kind: KindAuto, Best: -1, Matches: append([]Match(nil), p.Matches...)}
}

// startBuild walks the trace looking for runs of ready, non-key-frame
// entries and submits one optimization per run (spec §4.5, "Segment
// scheduling"), mirroring Trace::Implementation::start_build.
func (t *Trace) startBuild(ctx context.Context, wg *sync.WaitGroup, pars TraceParams) {
	t.mu.RLock()
	n := len(t.trace)
	t.mu.RUnlock()

	start := OpenBoundary()
	i := 0
	for i < n {
		for i < n && !t.source.IsReady(i) {
			i++
		}
		for i < n && t.source.IsReady(i) && t.isKeyframe(i) {
			start = t.keyframeBoundary(i)
			i++
		}
		if i < n && t.source.IsReady(i) {
			segStart := i
			var segment []*Point
			for i < n && t.source.IsReady(i) && !t.isKeyframe(i) {
				segment = append(segment, t.segmentEntry(i))
				i++
			}
			end := OpenBoundary()
			if i < n && t.source.IsReady(i) {
				end = t.keyframeBoundary(i)
			}
			wg.Add(1)
			go t.runSegment(ctx, wg, segStart, segment, start, end, pars.optParams())
		}
	}
}

func (t *Trace) runSegment(ctx context.Context, wg *sync.WaitGroup, segStart int, segment []*Point, start, end Boundary, pars Params) {
	defer wg.Done()
	segEnd := segStart + len(segment) - 1

	t.notify(segStart, segEnd)

	select {
	case <-ctx.Done():
		return
	default:
	}

	if err := Optimize(segment, start, end, pars); err != nil {
		slog.Error("segment optimization failed", "start", segStart, "end", segEnd, "err", err)
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	t.mu.Lock()
	for k, p := range segment {
		frame := segStart + k
		if t.trace[frame].Kind == KindAuto {
			t.trace[frame].Best = p.Best
		}
	}
	t.mu.Unlock()

	t.notify(segStart, segEnd)
}

func (t *Trace) notify(start, end int) {
	t.subMu.Lock()
	fn := t.sub
	t.subMu.Unlock()
	if fn != nil {
		fn(start, end)
	}
}
