package kdtree

import (
	"bytes"
	"math/rand"
	"slices"
	"testing"
)

func randomFeatures(n, d int, seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float32, n*d)
	for i := range out {
		out[i] = r.Float32()
	}
	return out
}

func bruteForceNearest(features []float32, d int, query []float32) int {
	best := -1
	var bestDist float64
	for k := 0; k*d < len(features); k++ {
		var sum float64
		for j := 0; j < d; j++ {
			diff := float64(query[j]) - float64(features[k*d+j])
			sum += diff * diff
		}
		if best < 0 || sum < bestDist {
			best = k
			bestDist = sum
		}
	}
	return best
}

func TestQueryGroundTruth(t *testing.T) {
	const n, d = 1000, 8
	hSteps, vSteps := n, 1
	features := randomFeatures(n, d, 1)

	tree, err := Build(d, hSteps, vSteps, 1, features)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	indices := tree.GetIndices()
	origOfColumn := make([]int, n)
	for k, orig := range indices {
		origOfColumn[k] = int(orig)
	}

	rq := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		query := make([]float32, d)
		for j := range query {
			query[j] = rq.Float32()
		}

		wantOrig := bruteForceNearest(features, d, query)

		matches, err := tree.Query(query, 1, 1.0)
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected 1 match, got %d", len(matches))
		}
		gotFlat := matches[0].Y*hSteps + matches[0].X
		if gotFlat != wantOrig {
			t.Fatalf("nearest mismatch: got flat %d want %d", gotFlat, wantOrig)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	const n, d = 200, 4
	hSteps, vSteps := 20, 10
	features := randomFeatures(n, d, 3)
	tree, err := Build(d, hSteps, vSteps, 2, features)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var buf bytes.Buffer
	if err := tree.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(loaded.GetPoints()) != len(tree.GetPoints()) {
		t.Fatalf("points length mismatch")
	}
	for i := range tree.GetPoints() {
		if loaded.GetPoints()[i] != tree.GetPoints()[i] {
			t.Fatalf("points mismatch at %d", i)
		}
	}
	for i := range tree.GetIndices() {
		if loaded.GetIndices()[i] != tree.GetIndices()[i] {
			t.Fatalf("indices mismatch at %d", i)
		}
	}

	query := make([]float32, d)
	for j := range query {
		query[j] = 0.5
	}
	want, err := tree.Query(query, 5, 1.0)
	if err != nil {
		t.Fatalf("Query (orig): %v", err)
	}
	got, err := loaded.Query(query, 5, 1.0)
	if err != nil {
		t.Fatalf("Query (loaded): %v", err)
	}
	if len(want) != len(got) {
		t.Fatalf("result length mismatch: %d vs %d", len(want), len(got))
	}
	for i := range want {
		if want[i].X != got[i].X || want[i].Y != got[i].Y || want[i].Distance != got[i].Distance ||
			!slices.Equal(want[i].Descriptor, got[i].Descriptor) {
			t.Fatalf("result %d mismatch: %+v vs %+v", i, want[i], got[i])
		}
	}
}

func TestBuildRejectsMismatchedFeatureBuffer(t *testing.T) {
	if _, err := Build(4, 10, 10, 1, make([]float32, 10)); err == nil {
		t.Fatal("expected error for mismatched feature buffer size")
	}
}
