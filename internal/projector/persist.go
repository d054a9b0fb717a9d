package projector

import (
	"bufio"
	"io"

	"github.com/ztracker/core/internal/persist"
)

// TypeName identifies the projector payload in a container file (spec §6).
const TypeName = "Projector"

// Save writes the projector in the wire layout of spec §6: mean, proj
// (both f32, length-prefixed), cov_sum (f64, length-prefixed), weighting
// (f32, length-prefixed), then data_count/patch_width/patch_height/
// pixel_size/output_dim (i32), then eigenvalues (f32, length-prefixed).
func (p *Projector) Save(w io.Writer) error {
	if err := persist.WriteName(w, TypeName); err != nil {
		return err
	}
	if err := persist.WriteFloat32Vector(w, p.Mean); err != nil {
		return err
	}
	if err := persist.WriteFloat32Vector(w, p.Proj); err != nil {
		return err
	}
	if err := persist.WriteFloat64Vector(w, p.CovSum); err != nil {
		return err
	}
	if err := persist.WriteFloat32Vector(w, p.Weighting); err != nil {
		return err
	}
	for _, v := range []int32{int32(p.DataCount), int32(p.PatchWidth), int32(p.PatchHeight), int32(p.PixelSize), int32(p.OutputDim)} {
		if err := persist.WriteInt32(w, v); err != nil {
			return err
		}
	}
	return persist.WriteFloat32Vector(w, p.Eigenvalues)
}

// Load reads a projector previously written by Save.
func Load(r io.Reader) (*Projector, error) {
	br := bufio.NewReader(r)
	if err := persist.ReadName(br, TypeName); err != nil {
		return nil, err
	}
	mean, err := persist.ReadFloat32Vector(br)
	if err != nil {
		return nil, err
	}
	proj, err := persist.ReadFloat32Vector(br)
	if err != nil {
		return nil, err
	}
	covSum, err := persist.ReadFloat64Vector(br)
	if err != nil {
		return nil, err
	}
	weighting, err := persist.ReadFloat32Vector(br)
	if err != nil {
		return nil, err
	}
	dataCount, err := persist.ReadInt32(br)
	if err != nil {
		return nil, err
	}
	patchWidth, err := persist.ReadInt32(br)
	if err != nil {
		return nil, err
	}
	patchHeight, err := persist.ReadInt32(br)
	if err != nil {
		return nil, err
	}
	pixelSize, err := persist.ReadInt32(br)
	if err != nil {
		return nil, err
	}
	outputDim, err := persist.ReadInt32(br)
	if err != nil {
		return nil, err
	}
	eigenvalues, err := persist.ReadFloat32Vector(br)
	if err != nil {
		return nil, err
	}
	return &Projector{
		PatchWidth:  int(patchWidth),
		PatchHeight: int(patchHeight),
		PixelSize:   int(pixelSize),
		OutputDim:   int(outputDim),
		Mean:        mean,
		Weighting:   weighting,
		Proj:        proj,
		Eigenvalues: eigenvalues,
		CovSum:      covSum,
		DataCount:   int(dataCount),
	}, nil
}
