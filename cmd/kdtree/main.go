// Command kdtree builds (or loads) a per-frame k-d tree index over a
// video source using a fitted projector, persisting results to a folder
// (spec §4.3, §4.4, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ztracker/core/envconfig"
	"github.com/ztracker/core/internal/frameio"
	"github.com/ztracker/core/internal/indexsource"
	"github.com/ztracker/core/internal/projector"
)

func main() {
	if err := newKdtreeCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newKdtreeCmd() *cobra.Command {
	var pixelStep int
	var folder string
	var start, end int

	cmd := &cobra.Command{
		Use:           "kdtree <video-dir> <projector-file> [start] [end]",
		Short:         "Build a per-frame k-d tree index over a video source",
		Args:          cobra.RangeArgs(2, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKdtree(args, pixelStep, folder, start, end)
		},
	}

	cmd.Flags().IntVar(&pixelStep, "pixel-step", 3, "grid spacing in pixels between indexed patches")
	cmd.Flags().StringVar(&folder, "folder", "", "persisted index directory (default: $ZT_INDEX_DIR)")
	cmd.Flags().IntVar(&start, "start", 0, "first frame index to wait for and report (inclusive); the source builds from frame 0")
	cmd.Flags().IntVar(&end, "end", -1, "last frame index to wait for and report (inclusive, default last frame)")

	return cmd
}

func runKdtree(args []string, pixelStep int, folder string, start, end int) error {
	videoDir, projFile := args[0], args[1]
	if len(args) > 2 {
		if _, err := fmt.Sscanf(args[2], "%d", &start); err != nil {
			return fmt.Errorf("invalid start %q: %w", args[2], err)
		}
	}
	if len(args) > 3 {
		if _, err := fmt.Sscanf(args[3], "%d", &end); err != nil {
			return fmt.Errorf("invalid end %q: %w", args[3], err)
		}
	}
	if folder == "" {
		folder = envconfig.IndexDir()
	}

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

	pf, err := os.Open(projFile)
	if err != nil {
		return fmt.Errorf("open projector file: %w", err)
	}
	proj, err := projector.Load(pf)
	pf.Close()
	if err != nil {
		return fmt.Errorf("load projector: %w", err)
	}

	buildID := uuid.New()
	verbose := envconfig.Verbose()
	workers := envconfig.Workers()
	if verbose {
		fmt.Printf("build %s: frames [%d,%d] pixel_step=%d workers=%d folder=%s\n",
			buildID, start, end, pixelStep, workers, folder)
	}

	src := indexsource.NewFileSource(video, proj, pixelStep, workers, folder)
	defer src.Close()

	type timing struct {
		frame    int
		points   int
		duration time.Duration
	}
	var rows []timing

	ctx := context.Background()
	for i := start; i <= end; i++ {
		t0 := time.Now()
		tree, err := src.Get(ctx, i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "frame %d: %v\n", i, err)
			continue
		}
		rows = append(rows, timing{frame: i, points: tree.N, duration: time.Since(t0)})
	}

	if verbose {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"frame", "points", "time"})
		for _, r := range rows {
			table.Append([]string{fmt.Sprintf("%d", r.frame), fmt.Sprintf("%d", r.points), r.duration.String()})
		}
		table.Render()
	}
	return nil
}
