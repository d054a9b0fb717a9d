// Package projector implements PCA-based dimensionality reduction of
// square image patches (spec §4.1), with optional Gaussian spatial
// weighting. Eigendecomposition of the weighted sample covariance uses
// gonum.org/v1/gonum/mat, the linear-algebra library already present in
// the teacher's dependency graph.
package projector

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/trackerr"
)

// Descriptor is a fixed-length projected feature vector.
type Descriptor []float32

// Projector holds the fitted PCA state of spec §3.
type Projector struct {
	PatchWidth, PatchHeight, PixelSize int
	OutputDim                         int

	Mean        []float32
	Weighting   []float32
	Proj        []float32 // row-major d x D
	Eigenvalues []float32
	CovSum      []float64 // uncentered sum of weighted outer products, full D x D row-major; covariance is CovSum - DataCount*mean*mean^T

	DataCount int
}

// InputDim returns D = patch_width * patch_height * pixel_size.
func (p *Projector) InputDim() int { return p.PatchWidth * p.PatchHeight * p.PixelSize }

// Ready reports whether the projector has been fit.
func (p *Projector) Ready() bool { return p.DataCount != 0 }

// gaussianWeighting builds a separable 2-D Gaussian, sigma = width/2.7,
// centered at (width-1)/2, broadcast across pixelSize channels.
func gaussianWeighting(width, height, pixelSize int) []float32 {
	sigma := float64(width) / 2.7
	cx := float64(width-1) / 2
	cy := float64(height-1) / 2
	gx := make([]float64, width)
	gy := make([]float64, height)
	for x := 0; x < width; x++ {
		dx := float64(x) - cx
		gx[x] = math.Exp(-(dx * dx) / (2 * sigma * sigma))
	}
	for y := 0; y < height; y++ {
		dy := float64(y) - cy
		gy[y] = math.Exp(-(dy * dy) / (2 * sigma * sigma))
	}
	w := make([]float32, width*height*pixelSize)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := float32(gx[x] * gy[y])
			for k := 0; k < pixelSize; k++ {
				w[i] = v
				i++
			}
		}
	}
	return w
}

// Fit builds a Projector from training patches per spec §4.1.
func Fit(outputDim int, patches []patch.Image, gaussianWeightingOn bool) (*Projector, error) {
	if len(patches) == 0 {
		return nil, trackerr.New(trackerr.InvalidArgument, "no training patches")
	}
	if len(patches) <= outputDim {
		return nil, trackerr.New(trackerr.InvalidArgument, "patch count must exceed output dimension")
	}
	width, height, pixelSize := patches[0].Width(), patches[0].Height(), patches[0].PixelSize()
	if gaussianWeightingOn && width != height {
		return nil, trackerr.New(trackerr.InvalidArgument, "Gaussian weighting requires square patches")
	}
	d := width * height * pixelSize
	if outputDim <= 0 || outputDim > d {
		return nil, trackerr.New(trackerr.InvalidArgument, "output dimension out of range")
	}

	weighting := make([]float32, d)
	for i := range weighting {
		weighting[i] = 1
	}
	if gaussianWeightingOn {
		weighting = gaussianWeighting(width, height, pixelSize)
	}

	meanSum := make([]float64, d)
	covSum := make([]float64, d*d)
	n := 0
	for _, p := range patches {
		if p.Width() != width || p.Height() != height || p.PixelSize() != pixelSize {
			return nil, trackerr.New(trackerr.SizeMismatch, "training patches must share dimensions")
		}
		bytes := p.ToBytes()
		weighted := make([]float64, d)
		for i := 0; i < d; i++ {
			weighted[i] = float64(bytes[i]) * float64(weighting[i])
		}
		for i := 0; i < d; i++ {
			meanSum[i] += weighted[i]
			wi := weighted[i]
			row := i * d
			for j := 0; j < d; j++ {
				covSum[row+j] += wi * weighted[j]
			}
		}
		n++
	}

	mean := make([]float32, d)
	for i := 0; i < d; i++ {
		mean[i] = float32(meanSum[i] / float64(n))
	}

	sigma := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		mi := float64(mean[i])
		for j := i; j < d; j++ {
			mj := float64(mean[j])
			v := covSum[i*d+j] - float64(n)*mi*mj
			sigma.SetSym(i, j, v)
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(sigma, true); !ok {
		return nil, fmt.Errorf("%w: covariance eigendecomposition failed", trackerr.ErrInvalidArgument)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// eig.Values is ascending; take the top outputDim by descending order.
	order := make([]int, d)
	for i := range order {
		order[i] = i
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if values[order[j]] > values[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	proj := make([]float32, outputDim*d)
	eigenvalues := make([]float32, outputDim)
	for row, idx := range order[:outputDim] {
		eigenvalues[row] = float32(values[idx])
		for j := 0; j < d; j++ {
			proj[row*d+j] = float32(vectors.At(j, idx))
		}
	}

	return &Projector{
		PatchWidth:  width,
		PatchHeight: height,
		PixelSize:   pixelSize,
		OutputDim:   outputDim,
		Mean:        mean,
		Weighting:   weighting,
		Proj:        proj,
		Eigenvalues: eigenvalues,
		CovSum:      covSum,
		DataCount:   n,
	}, nil
}

// Project computes the d-dimensional descriptor of patch img.
func (p *Projector) Project(img patch.Image) (Descriptor, error) {
	d := p.InputDim()
	if img.Width()*img.Height()*img.PixelSize() != d {
		return nil, trackerr.New(trackerr.SizeMismatch, "patch dimension does not match projector")
	}
	bytes := img.ToBytes()
	centered := make([]float64, d)
	for j := 0; j < d; j++ {
		centered[j] = float64(bytes[j])*float64(p.Weighting[j]) - float64(p.Mean[j])
	}
	out := make(Descriptor, p.OutputDim)
	for i := 0; i < p.OutputDim; i++ {
		row := p.Proj[i*d : i*d+d]
		var sum float64
		for j := 0; j < d; j++ {
			sum += float64(row[j]) * centered[j]
		}
		out[i] = float32(sum)
	}
	return out, nil
}

// Reconstruct inverts Project, clamping to [0, 255].
func (p *Projector) Reconstruct(desc Descriptor) ([]byte, error) {
	if len(desc) != p.OutputDim {
		return nil, trackerr.New(trackerr.SizeMismatch, "descriptor dimension does not match projector")
	}
	d := p.InputDim()
	v := make([]float64, d)
	copy(v, float64Slice(p.Mean))
	for i := 0; i < p.OutputDim; i++ {
		row := p.Proj[i*d : i*d+d]
		di := float64(desc[i])
		for j := 0; j < d; j++ {
			v[j] += di * float64(row[j])
		}
	}
	out := make([]byte, d)
	for j := 0; j < d; j++ {
		val := v[j] / float64(p.Weighting[j])
		r := math.Round(val)
		if r < 0 {
			r = 0
		} else if r > 255 {
			r = 255
		}
		out[j] = byte(r)
	}
	return out, nil
}

func float64Slice(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
