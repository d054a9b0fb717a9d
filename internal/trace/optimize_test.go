package trace

import (
	"testing"

	"github.com/ztracker/core/internal/patch"
)

// testParams mirrors the fixed OptimizationParameters{1.0, 2.0, 400.0, 2}
// used throughout original_source/Tests/ztTrackTests/optimize.cpp.
func testParams() Params {
	return Params{LambdaD: 1.0, LambdaU: 2.0, LambdaO: 400.0, MaxOcclusionDuration: 2}
}

func kfBoundary(x, y int, desc float32) Boundary {
	return KeyFrameBoundary(patch.Location{X: x, Y: y}, []float32{desc})
}

func makeMatch(x, y int, desc, appearance float32) Match {
	return Match{Location: patch.Location{X: x, Y: y}, Descriptor: []float32{desc}, Appearance: appearance}
}

func autoPoint(matches ...Match) *Point {
	return &Point{Kind: KindAuto, Best: -1, Matches: matches}
}

func assertOccluded(t *testing.T, p *Point, label string) {
	t.Helper()
	if p.Best != -1 {
		t.Fatalf("%s: want occluded, got Best=%d", label, p.Best)
	}
}

func assertLocation(t *testing.T, p *Point, label string, x, y int) {
	t.Helper()
	if p.Best < 0 || p.Best >= len(p.Matches) {
		t.Fatalf("%s: want location (%d,%d), got occluded", label, x, y)
	}
	got := p.Matches[p.Best].Location
	if got.X != x || got.Y != y {
		t.Fatalf("%s: want (%d,%d), got (%d,%d)", label, x, y, got.X, got.Y)
	}
}

func TestOptimizeNoMatches(t *testing.T) {
	seg := []*Point{autoPoint()}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(20, 20, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "no_matches")
}

func TestOptimizeSimplestLinearTrace(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(10, 11, 1.0, 0.0))}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(20, 20, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "simplest_linear_trace", 10, 11)
}

func TestOptimizePreferOccludeDistance(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(20, 0, 1.0, 0.0))}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(20, 20, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "prefer_occlude_distance")
}

func TestOptimizePreferOccludeAppearance(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(10, 11, -9.0, 100.0))}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(20, 20, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "prefer_occlude_appearance")
}

func TestOptimizeOpenStartPreferClosest(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(10, 11, 1.0, 0.0), makeMatch(12, 10, 1.0, 0.0))}
	if err := Optimize(seg, OpenBoundary(), kfBoundary(20, 20, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "open_start_prefer_closest", 12, 10)
}

func TestOptimizeOpenStartDeclineDifferentAndFar(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(10, 0, 1.0, 0.0), makeMatch(12, 10, -9.0, 100.0))}
	if err := Optimize(seg, OpenBoundary(), kfBoundary(20, 20, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "open_start_decline_different_and_far")
}

func TestOptimizeOpenEndPreferClosest(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(10, 11, 1.0, 0.0), makeMatch(12, 10, 1.0, 0.0))}
	if err := Optimize(seg, kfBoundary(20, 20, 3.0), OpenBoundary(), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "open_end_prefer_closest", 12, 10)
}

func TestOptimizeOpenEndDeclineDifferentAndFar(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(10, 0, 1.0, 0.0), makeMatch(12, 10, -9.0, 100.0))}
	if err := Optimize(seg, kfBoundary(20, 20, 3.0), OpenBoundary(), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "open_end_decline_different_and_far")
}

func TestOptimizeBothEndsOpen(t *testing.T) {
	seg := []*Point{autoPoint(makeMatch(10, 11, 1.0, 0.0))}
	if err := Optimize(seg, OpenBoundary(), OpenBoundary(), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "both_end_are_open", 10, 11)
}

func TestOptimizeLongPreferShortest(t *testing.T) {
	seg := []*Point{
		autoPoint(makeMatch(10, 12, 1.0, 0.0), makeMatch(10, 11, 1.0, 0.0)),
		autoPoint(makeMatch(20, 22, 1.0, 0.0), makeMatch(20, 21, 1.0, 0.0)),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "long_prefer_shortest[0]", 10, 11)
	assertLocation(t, seg[1], "long_prefer_shortest[1]", 20, 21)
}

func TestOptimizeLongWithOccludedPreferShortest(t *testing.T) {
	seg := []*Point{
		autoPoint(makeMatch(10, 12, 1.0, 0.0), makeMatch(10, 11, 1.0, 0.0)),
		autoPoint(makeMatch(20, 22, 1.0, 0.0), makeMatch(20, 21, 1.0, 0.0)),
		autoPoint(),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "long_w_occluded_prefer_shortest[0]", 10, 11)
	assertLocation(t, seg[1], "long_w_occluded_prefer_shortest[1]", 20, 21)
	assertOccluded(t, seg[2], "long_w_occluded_prefer_shortest[2]")
}

func TestOptimizeLongWithOccluded2PreferShortest(t *testing.T) {
	seg := []*Point{
		autoPoint(),
		autoPoint(makeMatch(10, 12, 1.0, 0.0), makeMatch(14, 13, 1.0, 0.0)),
		autoPoint(makeMatch(20, 22, 1.0, 0.0), makeMatch(22, 20, 1.0, 0.0)),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "long_w_occluded2_prefer_shortest[0]")
	assertLocation(t, seg[1], "long_w_occluded2_prefer_shortest[1]", 14, 13)
	assertLocation(t, seg[2], "long_w_occluded2_prefer_shortest[2]", 22, 20)
}

func TestOptimizeLongPreferSimilar(t *testing.T) {
	seg := []*Point{
		autoPoint(makeMatch(10, 12, 1.0, 0.0), makeMatch(10, 11, -1.0, 4.0)),
		autoPoint(makeMatch(20, 22, 1.0, 0.0), makeMatch(20, 21, -1.0, 4.0)),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "long_prefer_similar[0]", 10, 12)
	assertLocation(t, seg[1], "long_prefer_similar[1]", 20, 22)
}

func TestOptimizeLongOccludeDistance(t *testing.T) {
	seg := []*Point{
		autoPoint(makeMatch(10, 10, 1.0, 0.0)),
		autoPoint(makeMatch(30, 10, 1.0, 0.0)),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "long_occlude_distance[0]", 10, 10)
	assertOccluded(t, seg[1], "long_occlude_distance[1]")
}

func TestOptimizeLongOcclude2Distance(t *testing.T) {
	seg := []*Point{
		autoPoint(makeMatch(30, 0, 1.0, 0.0)),
		autoPoint(makeMatch(30, 10, 1.0, 0.0)),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "long_occlude2_distance[0]")
	assertOccluded(t, seg[1], "long_occlude2_distance[1]")
}

func TestOptimizeLongOccludeAppearance(t *testing.T) {
	seg := []*Point{
		autoPoint(makeMatch(10, 10, 1.0, 0.0)),
		autoPoint(makeMatch(20, 20, -9.0, 100.0)),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertLocation(t, seg[0], "long_occlude_appearance[0]", 10, 10)
	assertOccluded(t, seg[1], "long_occlude_appearance[1]")
}

func TestOptimizeLongOccludeAppearance2(t *testing.T) {
	seg := []*Point{
		autoPoint(makeMatch(10, 10, -9.0, 100.0)),
		autoPoint(makeMatch(20, 20, 1.0, 0.0)),
	}
	if err := Optimize(seg, kfBoundary(0, 0, 1.0), kfBoundary(30, 30, 3.0), testParams()); err != nil {
		t.Fatal(err)
	}
	assertOccluded(t, seg[0], "long_occlude_appearance2[0]")
	assertLocation(t, seg[1], "long_occlude_appearance2[1]", 20, 20)
}

func TestOptimizeRejectsEmptySegment(t *testing.T) {
	if err := Optimize(nil, OpenBoundary(), OpenBoundary(), testParams()); err == nil {
		t.Fatal("expected error for empty segment")
	}
}

func TestOptimizeRejectsNonAutoEntries(t *testing.T) {
	seg := []*Point{NewKeyFrame(patch.Location{X: 1, Y: 1}, []float32{1.0})}
	if err := Optimize(seg, OpenBoundary(), OpenBoundary(), testParams()); err == nil {
		t.Fatal("expected error for non-Auto segment entry")
	}
}
