package trace

import (
	"math"

	"github.com/ztracker/core/internal/kdtree"
	"github.com/ztracker/core/internal/patch"
)

// keyframeRef pairs a frame index with its KeyFrame point, the shape
// add_matches needs to rescore appearance against every known anchor.
type keyframeRef struct {
	Frame int
	Point *Point
}

// addMatches merges newMatches (k-d tree query results against the key
// frame at keyframes[newKeyframeIdx]) into existing, exactly per spec
// §4.5: rescoring survivors' appearance, then inserting or replacing
// candidates below appearanceThreshold up to cap, deduping anything
// within one pixel of a candidate already held.
func addMatches(existing []Match, keyframes []keyframeRef, newKeyframeIdx int, newMatches []kdtree.Match, cap int, appearanceThreshold float64) []Match {
	newKF := keyframes[newKeyframeIdx]

	for i := range existing {
		m := &existing[i]
		if m.ClosestKeyFrame == newKF.Frame {
			best := float32(math.Inf(1))
			bestFrame := m.ClosestKeyFrame
			for _, kf := range keyframes {
				d := float32(descDist2(m.Descriptor, kf.Point.Descriptor))
				if d < best {
					best, bestFrame = d, kf.Frame
				}
			}
			m.Appearance, m.ClosestKeyFrame = best, bestFrame
		} else {
			d := float32(descDist2(m.Descriptor, newKF.Point.Descriptor))
			if d < m.Appearance {
				m.Appearance, m.ClosestKeyFrame = d, newKF.Frame
			}
		}
	}

	for _, c := range newMatches {
		appearance := float32(descDist2(c.Descriptor, newKF.Point.Descriptor))
		if float64(appearance) >= appearanceThreshold {
			continue
		}
		loc := patch.Location{X: c.X, Y: c.Y}

		dup := false
		for _, m := range existing {
			if locDist2(m.Location, loc) < 1.0 {
				dup = true
				break
			}
		}
		if dup {
			continue
		}

		cand := Match{Location: loc, Descriptor: c.Descriptor, ClosestKeyFrame: newKF.Frame, Appearance: appearance}
		if len(existing) < cap {
			existing = append(existing, cand)
			continue
		}

		worst := 0
		for i := 1; i < len(existing); i++ {
			if existing[i].Appearance > existing[worst].Appearance {
				worst = i
			}
		}
		if cand.Appearance < existing[worst].Appearance {
			existing[worst] = cand
		}
	}
	return existing
}
