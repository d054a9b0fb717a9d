package kdtree

import (
	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/projector"
	"github.com/ztracker/core/internal/trackerr"
)

// BuildFromFrame samples the regular pixelStep grid of proj.PatchWidth x
// proj.PatchHeight patches from frame, projects each, and builds a k-d
// tree over the resulting descriptors (spec §4.3).
func BuildFromFrame(frame patch.Image, proj *projector.Projector, pixelStep int) (*Tree, error) {
	if pixelStep < 1 {
		return nil, trackerr.New(trackerr.InvalidArgument, "pixel_step must be >= 1")
	}
	if frame.PixelSize() != proj.PixelSize {
		return nil, trackerr.New(trackerr.SizeMismatch, "frame pixel size does not match projector")
	}
	if frame.Width() < proj.PatchWidth || frame.Height() < proj.PatchHeight {
		return nil, trackerr.New(trackerr.SizeMismatch, "patch does not fit in frame")
	}

	hSteps := (frame.Width() - proj.PatchWidth) / pixelStep
	vSteps := (frame.Height() - proj.PatchHeight) / pixelStep
	n := hSteps * vSteps
	d := proj.OutputDim

	features := make([]float32, n*d)
	for iv := 0; iv < vSteps; iv++ {
		for ih := 0; ih < hSteps; ih++ {
			k := iv*hSteps + ih
			sub := frame.SubView(ih*pixelStep, iv*pixelStep, proj.PatchWidth, proj.PatchHeight)
			desc, err := proj.Project(sub)
			if err != nil {
				return nil, err
			}
			copy(features[k*d:(k+1)*d], desc)
		}
	}
	return Build(d, hSteps, vSteps, pixelStep, features)
}
