package trace

import (
	"math"

	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/trackerr"
)

// Params are the dynamic-programming cost weights of spec §4.6, carried
// in from TraceParameters on every segment build.
type Params struct {
	LambdaD              float64 // velocity penalty
	LambdaU              float64 // appearance-update penalty
	LambdaO              float64 // become-occluded penalty
	MaxOcclusionDuration int
}

// LambdaR is the remain-occluded penalty, half of LambdaO.
func (p Params) LambdaR() float64 { return p.LambdaO / 2 }

// Boundary is a segment's start or end anchor: either a key frame with a
// known location/descriptor, or open — meaning forced-occluded, or the
// segment runs off the edge of a ready index range.
type Boundary struct {
	Open       bool
	Location   patch.Location
	Descriptor []float32
}

// KeyFrameBoundary anchors a segment to a user-fixed key frame.
func KeyFrameBoundary(loc patch.Location, desc []float32) Boundary {
	return Boundary{Location: loc, Descriptor: desc}
}

// OpenBoundary represents a forced occlusion or an unready edge.
func OpenBoundary() Boundary { return Boundary{Open: true} }

type dpCell struct {
	cost float64
	backJ int // -1 means "reached directly from the start boundary"
	backM int
}

func locDist2(a, b patch.Location) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return dx*dx + dy*dy
}

func descDist2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// remainVisibleCost: both prev and curr are real, adjacent candidates.
func remainVisibleCost(prevBest float64, prevLoc patch.Location, prevDesc []float32, curr Match, pars Params) float64 {
	return prevBest + pars.LambdaD*locDist2(prevLoc, curr.Location) + pars.LambdaU*descDist2(prevDesc, curr.Descriptor) + float64(curr.Appearance)
}

// becomeVisibleCost: prev is real (or the start boundary's own location
// with zero baseline cost), curr is a real candidate, delta occluded
// frames separate them.
func becomeVisibleCost(prevBest float64, prevLoc patch.Location, curr Match, delta int, pars Params) float64 {
	return prevBest + pars.LambdaD*locDist2(prevLoc, curr.Location)/float64(delta+1) + float64(curr.Appearance)
}

// forwardCell computes best(i, curr) per spec §4.6: the minimal cost of
// a path ending at virtual position i with the given candidate, and the
// backtrack pointer that achieves it. i == len(segment) is the virtual
// end-boundary step; isNull marks curr as an open/occluded anchor
// rather than a real candidate (§9, "+Inf appearance propagation").
func forwardCell(segment []*Point, dp [][]dpCell, i int, curr Match, isNull bool, start Boundary, pars Params) dpCell {
	best := math.Inf(1)
	backJ, backM := -1, 0

	// i == 0 has no predecessor cell: it is seeded directly from the
	// start boundary, continuously visible, no occlusion term at all.
	// Only reachable with isNull == false (isNull implies i == len(segment),
	// and Optimize rejects an empty segment).
	if i == 0 {
		var c float64
		if start.Open {
			c = float64(curr.Appearance)
		} else {
			c = remainVisibleCost(0, start.Location, start.Descriptor, curr, pars)
		}
		return dpCell{cost: c, backJ: -1, backM: 0}
	}

	for m2, prev := range segment[i-1].Matches {
		var c float64
		if isNull {
			// Observation simply stopped here; not an occlusion event.
			c = dp[i-1][m2].cost
		} else {
			c = remainVisibleCost(dp[i-1][m2].cost, prev.Location, prev.Descriptor, curr, pars)
		}
		if c < best {
			best, backJ, backM = c, i-1, m2
		}
	}

	lo := i - pars.MaxOcclusionDuration
	if lo < 0 {
		lo = 0
	}
	for j := i - 2; j >= lo; j-- {
		delta := i - j - 1
		eOccl := pars.LambdaO + float64(delta-1)*pars.LambdaR()
		if eOccl >= best {
			break
		}
		for m2, prev := range segment[j].Matches {
			var c float64
			if isNull {
				c = dp[j][m2].cost + eOccl
			} else {
				c = eOccl + becomeVisibleCost(dp[j][m2].cost, prev.Location, curr, delta, pars)
			}
			if c < best {
				best, backJ, backM = c, j, m2
			}
		}
	}

	if lo == 0 && i >= 1 {
		delta := i
		eOccl := pars.LambdaO + float64(delta-1)*pars.LambdaR()
		var c float64
		switch {
		case isNull:
			c = eOccl
		case start.Open:
			c = eOccl + float64(curr.Appearance)
		default:
			c = eOccl + becomeVisibleCost(0, start.Location, curr, delta, pars)
		}
		if c < best {
			best, backJ, backM = c, -1, 0
		}
	}

	return dpCell{cost: best, backJ: backJ, backM: backM}
}

// Optimize solves one segment of auto/forced-occluded frames between
// start and end (spec §4.6): it assigns each entry in segment a
// candidate index, or -1 for occluded, minimizing the cumulative cost
// of the forward recurrence above. Forced-occluded entries carry an
// empty Matches slice and simply contribute no candidates of their own.
func Optimize(segment []*Point, start, end Boundary, pars Params) error {
	if len(segment) == 0 {
		return trackerr.New(trackerr.InvalidArgument, "empty segment")
	}
	for _, p := range segment {
		if p.Kind != KindAuto {
			return trackerr.New(trackerr.InvalidArgument, "segment entries must be Auto")
		}
	}

	L := len(segment)
	dp := make([][]dpCell, L)
	for i := 0; i < L; i++ {
		dp[i] = make([]dpCell, len(segment[i].Matches))
		for mi, cand := range segment[i].Matches {
			dp[i][mi] = forwardCell(segment, dp, i, cand, false, start, pars)
		}
	}

	var endCand Match
	if !end.Open {
		endCand = Match{Location: end.Location, Descriptor: end.Descriptor}
	}
	final := forwardCell(segment, dp, L, endCand, end.Open, start, pars)

	curJ, curM := final.backJ, final.backM
	pos := L
	for {
		for k := pos - 1; k > curJ; k-- {
			segment[k].Best = -1
		}
		if curJ < 0 {
			break
		}
		segment[curJ].Best = curM
		pos = curJ
		curJ, curM = dp[curJ][curM].backJ, dp[curJ][curM].backM
	}
	return nil
}
