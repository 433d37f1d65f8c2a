package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/deps"
	"github.com/reelcap/reelcap/internal/export"
	"github.com/reelcap/reelcap/internal/library"
)

// ExportOptions holds command options.
type ExportOptions struct {
	Preset string
	Width  int
	Height int
	Output string
	Zoom   float64
	FocusX float64
	FocusY float64
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export <recording.mp4>",
		Short: "Re-render a recording into another aspect ratio",
		Long: `Re-render a finished recording into a target canvas. The source is
scaled to cover the canvas with a slight overscan and centered, so the
result fills the frame edge to edge instead of letterboxing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(args[0], opts)
		},
		Example: `  # 9:16 vertical cut for mobile
  reelcap export rec-20260830-120000-ab12.mp4 --preset mobile

  # Custom canvas with a 2x zoom on the upper-left quadrant
  reelcap export rec.mp4 --width 1280 --height 720 --zoom 2 --focus-x 0.25 --focus-y 0.25`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Preset, "preset", "", fmt.Sprintf("Target preset (%s)", strings.Join(export.PresetNames(), ", ")))
	flags.IntVar(&opts.Width, "width", 0, "Custom target width")
	flags.IntVar(&opts.Height, "height", 0, "Custom target height")
	flags.StringVarP(&opts.Output, "output", "o", "", "Destination path (default: next to the source)")
	flags.Float64Var(&opts.Zoom, "zoom", 0, "Render a magnified view at this zoom level (>1)")
	flags.Float64Var(&opts.FocusX, "focus-x", 0.5, "Zoom focus point, normalized x")
	flags.Float64Var(&opts.FocusY, "focus-y", 0.5, "Zoom focus point, normalized y")

	return cmd
}

func runExport(sourcePath string, opts *ExportOptions) error {
	if err := deps.Require("ffmpeg", config.GetFFmpegPath()); err != nil {
		return err
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return fmt.Errorf("source not found: %s", sourcePath)
	}
	if opts.Preset == "" && opts.Width == 0 && opts.Height == 0 {
		opts.Preset = "standard"
	}

	target, err := export.ResolveTarget(opts.Preset, opts.Width, opts.Height)
	if err != nil {
		return err
	}

	transcoder := export.NewTranscoder(config.GetFFmpegPath(), nil)
	fmt.Printf("Exporting %s -> %s (%s)\n", filepath.Base(sourcePath), export.TargetLabel(target), target)

	dest, err := transcoder.Export(context.Background(), export.Job{
		SourcePath:      sourcePath,
		DestinationPath: opts.Output,
		Target:          target,
		Options: export.Options{
			Zoom:     opts.Zoom,
			FocusX:   opts.FocusX,
			FocusY:   opts.FocusY,
			Overscan: config.GetExportOverscan(),
		},
		OnProgress: func(p export.Progress) {
			fmt.Printf("\r  %5.1f%%  %s", p.Percent, p.Speed)
		},
	})
	fmt.Println()
	if err != nil {
		color.Red("✗ Export failed: %v", err)
		return fmt.Errorf("export failed")
	}

	catalogExport(dest)
	color.Green("✓ Export saved: %s", dest)
	return nil
}

// catalogExport records the finished export in the library. Failure
// to catalog never fails the export itself.
func catalogExport(path string) {
	catalog := library.NewCatalog(config.GetCatalogPath(), 1024)
	entry := library.Entry{
		ID:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:    library.KindExport,
		Path:    path,
		Created: time.Now(),
	}
	if st, err := os.Stat(path); err == nil {
		entry.Bytes = st.Size()
	}
	if info, err := export.Probe(path); err == nil {
		entry.Width, entry.Height = info.DisplayDimensions()
		entry.Duration = info.DurationSeconds
	}
	if err := catalog.Add(entry); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to catalog export: %v\n", err)
	}
}
