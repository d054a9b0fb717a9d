// Package frameio provides a reference FrameSource implementation: a
// directory of sequentially numbered image files. Video decoding proper
// is a Non-goal of the tracker core (spec §1) and remains an external
// concern; this adapter exists only so the CLI surfaces of spec §6 have
// something concrete to drive.
//
// Grounded in the teacher's vision/image.go decode pipeline: the same
// decoder registration (stdlib image/jpeg, image/png, plus
// golang.org/x/image/webp for the blank-import side effect) and
// conversion-to-RGBA-then-strip-alpha approach.
package frameio

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	_ "golang.org/x/image/webp"

	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/trackerr"
)

// FrameSource is the external collaborator contract the core consumes:
// random-access delivery of decoded RGB frames, frame count, and
// dimensions (spec §2).
type FrameSource interface {
	NumFrames() int
	Width() int
	Height() int
	Frame(i int) (patch.Image, error)
}

// ImageSequenceSource reads every .png, .jpg, .jpeg and .webp file in a
// directory, ordered by file name as a string; numeric order holds only
// for zero-padded names such as frame%06d. Safe for concurrent Frame calls: each
// call opens and decodes its file independently (spec §5, "expected to
// be thread-safe for independent frame fetches").
type ImageSequenceSource struct {
	paths         []string
	width, height int
}

// OpenImageSequence scans dir for image files and probes the first
// frame's dimensions.
func OpenImageSequence(dir string) (*ImageSequenceSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg", ".webp":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, trackerr.New(trackerr.IoError, "no frame images found in "+dir)
	}

	src := &ImageSequenceSource{paths: paths}
	first, err := src.decode(0)
	if err != nil {
		return nil, err
	}
	src.width, src.height = first.Width(), first.Height()
	return src, nil
}

func (s *ImageSequenceSource) NumFrames() int { return len(s.paths) }
func (s *ImageSequenceSource) Width() int     { return s.width }
func (s *ImageSequenceSource) Height() int    { return s.height }

func (s *ImageSequenceSource) Frame(i int) (patch.Image, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, trackerr.New(trackerr.InvalidArgument, "frame index out of range")
	}
	return s.decode(i)
}

func (s *ImageSequenceSource) decode(i int) (*patch.Frame, error) {
	f, err := os.Open(s.paths[i])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", trackerr.ErrIoError, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", trackerr.ErrIoError, s.paths[i], err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pix := make([]byte, w*h*patch.PixelSize)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			pix[idx] = byte(r >> 8)
			pix[idx+1] = byte(g >> 8)
			pix[idx+2] = byte(b >> 8)
			idx += 3
		}
	}
	return patch.NewFrame(w, h, patch.PixelSize, pix), nil
}
