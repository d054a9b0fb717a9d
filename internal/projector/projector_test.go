package projector

import (
	"math"
	"testing"

	"github.com/ztracker/core/internal/patch"
)

func makeTrainingPatches(bases [][]byte, scalars []int) []patch.Image {
	var patches []patch.Image
	for _, base := range bases {
		for _, v := range scalars {
			bytes := make([]byte, len(base))
			for i, b := range base {
				val := v * int(b)
				if val > 255 {
					val = 255
				}
				bytes[i] = byte(val)
			}
			patches = append(patches, patch.NewFrame(2, 2, 3, bytes))
		}
	}
	return patches
}

func TestFitRoundTripNoWeighting(t *testing.T) {
	bases := [][]byte{
		{1, 2, 3, 4, 5, 6, 7, 1, 2, 3, 4, 5},
		{7, 6, 5, 4, 3, 2, 1, 7, 6, 5, 4, 3},
		{2, 4, 6, 1, 3, 5, 7, 2, 4, 6, 1, 3},
		{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3},
	}
	scalars := []int{0, 1, 2, 3, 4, 5, 6, 7}
	patches := makeTrainingPatches(bases, scalars)

	p, err := Fit(4, patches, false)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !p.Ready() {
		t.Fatal("expected projector to be ready after fit")
	}

	for _, img := range patches {
		desc, err := p.Project(img)
		if err != nil {
			t.Fatalf("Project: %v", err)
		}
		got, err := p.Reconstruct(desc)
		if err != nil {
			t.Fatalf("Reconstruct: %v", err)
		}
		want := img.ToBytes()
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("round-trip mismatch at %d: got %d want %d", i, got[i], want[i])
			}
		}
	}
}

func TestProjOrthonormal(t *testing.T) {
	bases := [][]byte{
		{1, 2, 3, 4, 5, 6, 7, 1, 2, 3, 4, 5},
		{7, 6, 5, 4, 3, 2, 1, 7, 6, 5, 4, 3},
		{2, 4, 6, 1, 3, 5, 7, 2, 4, 6, 1, 3},
		{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3},
	}
	scalars := []int{0, 1, 2, 3, 4, 5, 6, 7}
	patches := makeTrainingPatches(bases, scalars)

	p, err := Fit(4, patches, false)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	d := p.InputDim()
	for i := 0; i < p.OutputDim; i++ {
		for j := 0; j < p.OutputDim; j++ {
			var dot float64
			for k := 0; k < d; k++ {
				dot += float64(p.Proj[i*d+k]) * float64(p.Proj[j*d+k])
			}
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(dot-want) > 1e-5 {
				t.Fatalf("Gram[%d][%d] = %v, want %v", i, j, dot, want)
			}
		}
	}
}

func TestFitRejectsTooFewPatches(t *testing.T) {
	bases := [][]byte{{1, 2, 3, 4, 5, 6, 7, 1, 2, 3, 4, 5}}
	patches := makeTrainingPatches(bases, []int{0, 1, 2, 3})
	if _, err := Fit(4, patches, false); err == nil {
		t.Fatal("expected error when patch count <= d")
	}
}

func TestFitRejectsNonSquareWithGaussian(t *testing.T) {
	bytes := make([]byte, 2*3*3)
	var patches []patch.Image
	for i := 0; i < 10; i++ {
		patches = append(patches, patch.NewFrame(3, 2, 3, bytes))
	}
	if _, err := Fit(2, patches, true); err == nil {
		t.Fatal("expected error for Gaussian weighting on non-square patches")
	}
}
