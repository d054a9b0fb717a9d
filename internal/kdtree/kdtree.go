// Package kdtree implements the balanced k-d tree frame index of spec
// §4.3: median-split build over projected grid patches, approximate
// k-NN query with a bounded max-heap, and the textual-header/binary-body
// persistence format of spec §6.
package kdtree

import (
	"container/heap"
	"math"
	"sort"

	"github.com/ztracker/core/internal/trackerr"
)

// BucketCapacity is the maximum number of points held by a leaf.
const BucketCapacity = 128

// Match is one returned neighbour, translated back to grid coordinates.
type Match struct {
	X, Y       int
	Distance   float64
	Descriptor []float32
}

// Tree is a balanced k-d tree over projected descriptors of one frame's
// grid-aligned patches.
type Tree struct {
	D, N                   int
	PixelStep              int
	HSteps, VSteps         int
	Features               []float32 // N*D, point k's descriptor at [k*D:(k+1)*D]
	Indices                []int32   // permutation: Features[k] originally at flat index Indices[k]
	SplitDim               []int32
	Threshold              []float64
	Left, Right            []int32
	LeafOffset             []int32 // len(leaves)+1, LeafOffset[i]..LeafOffset[i+1] is leaf i's point range
	Root                   int32   // negative => leaf, encodeLeaf(idx); non-negative => internal node index
}

func encodeLeaf(i int) int32 { return int32(-(i + 1)) }
func decodeLeaf(v int32) int { return int(-v - 1) }
func isLeaf(v int32) bool    { return v < 0 }

// Build constructs a k-d tree over the descriptors of a frame's grid
// points. features is laid out point-major (point k's descriptor
// contiguous at features[k*d:(k+1)*d]), matching the grid's flat
// column-major (ih fastest) enumeration order.
func Build(d, hSteps, vSteps, pixelStep int, features []float32) (*Tree, error) {
	n := hSteps * vSteps
	if len(features) != n*d {
		return nil, trackerr.New(trackerr.SizeMismatch, "feature buffer does not match grid size")
	}
	t := &Tree{
		D:         d,
		N:         n,
		PixelStep: pixelStep,
		HSteps:    hSteps,
		VSteps:    vSteps,
	}
	if n == 0 {
		t.Indices = []int32{}
		t.Features = []float32{}
		t.Root = encodeLeaf(0)
		t.LeafOffset = []int32{0, 0}
		return t, nil
	}

	order := make([]int32, n)
	for i := range order {
		order[i] = int32(i)
	}

	b := &builder{d: d, features: features, order: order}
	t.Root = b.build(0, n-1)
	t.SplitDim = b.splitDim
	t.Threshold = b.threshold
	t.Left = b.left
	t.Right = b.right
	t.LeafOffset = append(b.leafStart, int32(n))

	t.Indices = order
	t.Features = make([]float32, n*d)
	for k := 0; k < n; k++ {
		src := int(order[k]) * d
		copy(t.Features[k*d:(k+1)*d], features[src:src+d])
	}
	return t, nil
}

type builder struct {
	d        int
	features []float32 // original, unpermuted
	order    []int32

	splitDim  []int32
	threshold []float64
	left      []int32
	right     []int32
	leafStart []int32
}

func (b *builder) featAt(origIdx int32, dim int) float32 {
	return b.features[int(origIdx)*b.d+dim]
}

func (b *builder) build(lo, hi int) int32 {
	size := hi - lo + 1
	if size <= BucketCapacity {
		leafIdx := len(b.leafStart)
		b.leafStart = append(b.leafStart, int32(lo))
		return encodeLeaf(leafIdx)
	}

	splitDim := 0
	bestRange := float32(-1)
	for dim := 0; dim < b.d; dim++ {
		mn, mx := b.featAt(b.order[lo], dim), b.featAt(b.order[lo], dim)
		for k := lo + 1; k <= hi; k++ {
			v := b.featAt(b.order[k], dim)
			if v < mn {
				mn = v
			}
			if v > mx {
				mx = v
			}
		}
		r := mx - mn
		if r > bestRange {
			bestRange = r
			splitDim = dim
		}
	}

	sub := b.order[lo : hi+1]
	sort.Slice(sub, func(i, j int) bool {
		return b.featAt(sub[i], splitDim) < b.featAt(sub[j], splitDim)
	})

	m := (size + 1) / 2 // ceil(size/2)
	var threshold float64
	if size%2 == 1 {
		threshold = float64(b.featAt(b.order[lo+m-1], splitDim))
	} else {
		threshold = (float64(b.featAt(b.order[lo+m-1], splitDim)) + float64(b.featAt(b.order[lo+m], splitDim))) / 2
	}

	nodeIdx := len(b.splitDim)
	b.splitDim = append(b.splitDim, int32(splitDim))
	b.threshold = append(b.threshold, threshold)
	b.left = append(b.left, 0)
	b.right = append(b.right, 0)

	left := b.build(lo, lo+m-1)
	right := b.build(lo+m, hi)
	b.left[nodeIdx] = left
	b.right[nodeIdx] = right
	return int32(nodeIdx)
}

// GetPoints returns the permuted, contiguous descriptor matrix.
func (t *Tree) GetPoints() []float32 { return t.Features }

// GetIndices returns the permutation array.
func (t *Tree) GetIndices() []int32 { return t.Indices }

type heapItem struct {
	dist float64
	idx  int32
}

// maxHeap is a bounded max-heap on distance: root is the worst (largest)
// of the current best-K candidates.
type maxHeap []heapItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Query returns the K approximate nearest neighbours to query, translated
// back to grid coordinates, ascending by distance.
func (t *Tree) Query(query []float32, k int, approxRatio float64) ([]Match, error) {
	if len(query) != t.D {
		return nil, trackerr.New(trackerr.SizeMismatch, "query descriptor dimension mismatch")
	}
	if t.N == 0 || k <= 0 {
		return nil, nil
	}

	h := make(maxHeap, k)
	for i := range h {
		h[i] = heapItem{dist: math.Inf(1), idx: -1}
	}
	heap.Init(&h)

	type frame struct {
		node int32
		dist float64
	}
	stack := []frame{{t.Root, 0}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if top.dist != 0 && top.dist >= h[0].dist*approxRatio {
			continue
		}

		if isLeaf(top.node) {
			leafIdx := decodeLeaf(top.node)
			start, end := t.LeafOffset[leafIdx], t.LeafOffset[leafIdx+1]
			for col := start; col < end; col++ {
				feat := t.Features[int(col)*t.D : int(col+1)*t.D]
				var sum float64
				worst := h[0].dist
				early := false
				for dim := 0; dim < t.D; dim++ {
					diff := float64(query[dim]) - float64(feat[dim])
					sum += diff * diff
					if sum >= worst {
						early = true
						break
					}
				}
				if early {
					continue
				}
				if sum < h[0].dist {
					heap.Pop(&h)
					heap.Push(&h, heapItem{dist: sum, idx: col})
				}
			}
			continue
		}

		node := int(top.node)
		diff := float64(query[t.SplitDim[node]]) - t.Threshold[node]
		planeDist := diff * diff
		var near, far int32
		if diff <= 0 {
			near, far = t.Left[node], t.Right[node]
		} else {
			near, far = t.Right[node], t.Left[node]
		}
		stack = append(stack, frame{far, planeDist})
		stack = append(stack, frame{near, 0})
	}

	items := make([]heapItem, 0, k)
	for _, it := range h {
		if it.idx >= 0 {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].dist < items[j].dist })

	out := make([]Match, len(items))
	for i, it := range items {
		origFlat := int(t.Indices[it.idx])
		x := (origFlat % t.HSteps) * t.PixelStep
		y := (origFlat / t.HSteps) * t.PixelStep
		desc := make([]float32, t.D)
		copy(desc, t.Features[int(it.idx)*t.D:int(it.idx+1)*t.D])
		out[i] = Match{X: x, Y: y, Distance: it.dist, Descriptor: desc}
	}
	return out, nil
}
