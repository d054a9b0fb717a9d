// Package trace implements the per-frame anchor manager and segment
// rebuild scheduler of spec §4.5, and the segment dynamic-programming
// optimizer of spec §4.6. Grounded in original_source/ztTrace/Trace.cpp
// (the edit-serializing agent loop and candidate recomputation) and
// original_source/ztTrace/TracePoint.h (the tagged trace-point union
// and the Match/Payload shape the optimizer consumes).
package trace

import (
	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/projector"
)

// Kind tags the closed union a trace entry can hold (spec §3, "Polymorphism
// by tag" design note, spec §9).
type Kind int

const (
	KindAuto Kind = iota
	KindKeyFrame
	KindOccluded
)

// Match is one candidate location for an Auto frame: a point a k-d tree
// query returned, scored against the nearest key frame's descriptor.
type Match struct {
	Location        patch.Location
	Descriptor      projector.Descriptor
	ClosestKeyFrame int // frame index of the key frame that set Appearance
	Appearance      float32
}

// Point is one frame's trace entry: KeyFrame and Occluded carry no
// candidate list; Auto carries Matches plus the currently selected Best
// index (-1 meaning occluded).
type Point struct {
	Kind Kind

	// KeyFrame fields.
	Location   patch.Location
	Descriptor projector.Descriptor

	// Auto fields.
	Matches []Match
	Best    int // index into Matches, or -1 for occluded
}

// NewAuto returns a freshly reset Auto point with no candidates.
func NewAuto() *Point { return &Point{Kind: KindAuto, Best: -1} }

// NewKeyFrame returns a user-fixed trace point.
func NewKeyFrame(loc patch.Location, desc projector.Descriptor) *Point {
	return &Point{Kind: KindKeyFrame, Location: loc, Descriptor: desc}
}

// NewOccluded returns a user-forced occlusion.
func NewOccluded() *Point { return &Point{Kind: KindOccluded, Best: -1} }

// TracePoint returns the currently best location, or (zero, false) if
// the frame is occluded (forced or DP-selected).
func (p *Point) TracePoint() (patch.Location, bool) {
	switch p.Kind {
	case KindKeyFrame:
		return p.Location, true
	case KindAuto:
		if p.Best < 0 || p.Best >= len(p.Matches) {
			return patch.Location{}, false
		}
		return p.Matches[p.Best].Location, true
	default:
		return patch.Location{}, false
	}
}
