// Command projector fits a PCA patch projector (spec §4.1) from an
// image-sequence video source and writes it to disk (spec §6).
package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/ztracker/core/envconfig"
	"github.com/ztracker/core/internal/frameio"
	"github.com/ztracker/core/internal/patch"
	"github.com/ztracker/core/internal/projector"
)

func main() {
	if err := newProjectorCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newProjectorCmd() *cobra.Command {
	var dim, patchSize, samples, start, end int

	cmd := &cobra.Command{
		Use:           "projector <video-dir> <outfile>",
		Short:         "Fit a PCA patch projector from sampled video frames",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjector(args[0], args[1], dim, patchSize, samples, start, end)
		},
	}

	cmd.Flags().IntVar(&dim, "dim", 16, "output descriptor dimension")
	cmd.Flags().IntVar(&patchSize, "patch-size", 21, "training patch side length in pixels")
	cmd.Flags().IntVar(&samples, "samples", 10000, "total training patches to sample")
	cmd.Flags().IntVar(&start, "start", 0, "first frame index to sample from (inclusive)")
	cmd.Flags().IntVar(&end, "end", -1, "last frame index to sample from (inclusive, default last frame)")

	return cmd
}

func runProjector(videoDir, outfile string, dim, patchSize, samples, start, end int) error {
	video, err := frameio.OpenImageSequence(videoDir)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	if end < 0 || end >= video.NumFrames() {
		end = video.NumFrames() - 1
	}
	if start < 0 || start > end {
		return fmt.Errorf("invalid frame range [%d, %d]", start, end)
	}

	numFrames := int(math.Sqrt(float64(samples)))
	if numFrames < 1 {
		numFrames = 1
	}
	if numFrames > end-start+1 {
		numFrames = end - start + 1
	}
	perFrame := samples / numFrames
	if perFrame < 1 {
		perFrame = 1
	}

	verbose := envconfig.Verbose()
	training := sampleTrainingPatches(video, start, end, numFrames, perFrame, patchSize, verbose)

	proj, err := projector.Fit(dim, training, false)
	if err != nil {
		return fmt.Errorf("fit projector: %w", err)
	}

	f, err := os.Create(outfile)
	if err != nil {
		return fmt.Errorf("create %s: %w", outfile, err)
	}
	defer f.Close()
	if err := proj.Save(f); err != nil {
		return fmt.Errorf("save projector: %w", err)
	}
	if verbose {
		fmt.Printf("fit projector: dim=%d patches=%d -> %s\n", dim, len(training), outfile)
	}
	return nil
}

// sampleTrainingPatches picks numFrames equally spaced frames in
// [start, end] and perFrame random patchSize x patchSize sub-patches
// from each.
func sampleTrainingPatches(video frameio.FrameSource, start, end, numFrames, perFrame, patchSize int, verbose bool) []patch.Image {
	r := rand.New(rand.NewSource(1))
	var training []patch.Image

	step := float64(end-start) / float64(max(numFrames-1, 1))
	for i := 0; i < numFrames; i++ {
		idx := start
		if numFrames > 1 {
			idx = start + int(math.Round(float64(i)*step))
		}
		img, err := video.Frame(idx)
		if err != nil {
			if verbose {
				fmt.Printf("skip frame %d: %v\n", idx, err)
			}
			continue
		}
		w, h := img.Width(), img.Height()
		if w < patchSize || h < patchSize {
			continue
		}
		for j := 0; j < perFrame; j++ {
			x := r.Intn(w - patchSize + 1)
			y := r.Intn(h - patchSize + 1)
			sub := img.SubView(x, y, patchSize, patchSize)
			training = append(training, patch.NewFrame(patchSize, patchSize, sub.PixelSize(), sub.ToBytes()))
		}
	}
	return training
}
