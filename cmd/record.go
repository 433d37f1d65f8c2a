package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/capture"
	"github.com/reelcap/reelcap/internal/deps"
	"github.com/reelcap/reelcap/internal/library"
	"github.com/reelcap/reelcap/internal/server"
	"github.com/reelcap/reelcap/internal/util"
	"github.com/reelcap/reelcap/internal/zoom"
)

// RecordOptions holds command options.
type RecordOptions struct {
	Dir      string
	Name     string
	NoAudio  bool
	Duration time.Duration
	Preview  bool
	Open     bool
}

// NewRecordCommand creates the record command.
func NewRecordCommand() *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the display to a fragmented MP4 file",
		Long: `Record the primary display (and the default audio device) into a
fragmented MP4 file. Stop with Ctrl-C or --duration. Transient capture
failures are recovered with a bounded number of restarts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts)
		},
		Example: `  # Record until Ctrl-C
  reelcap record

  # Record 30 seconds of video only, then open the file
  reelcap record --duration 30s --no-audio --open

  # Record with the live preview server on http://127.0.0.1:29777
  reelcap record --preview`,
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Dir, "dir", "", "Destination directory (default: configured recordings dir)")
	flags.StringVar(&opts.Name, "name", "", "Output file stem (default: timestamp-derived)")
	flags.BoolVar(&opts.NoAudio, "no-audio", false, "Record video only")
	flags.DurationVar(&opts.Duration, "duration", 0, "Stop automatically after this long")
	flags.BoolVar(&opts.Preview, "preview", false, "Serve the live preview while recording")
	flags.BoolVar(&opts.Open, "open", false, "Open the finished recording")

	return cmd
}

func runRecord(opts *RecordOptions) error {
	if err := deps.Require("ffmpeg", config.GetFFmpegPath()); err != nil {
		return err
	}

	dir := opts.Dir
	if dir == "" {
		dir = config.GetRecordingsDir()
	}
	audio := config.GetCaptureAudio() && !opts.NoAudio
	width, height := capture.DetectDisplaySize()
	logger := util.GetLogger()

	tracker := zoom.NewTracker(config.GetZoomSmoothing(), width, height, nil)
	catalog := library.NewCatalog(config.GetCatalogPath(), 1024)

	controller, err := server.NewController(server.ControllerConfig{
		SourceFactory: func() (capture.Source, error) {
			return capture.NewFFmpegSource(capture.Config{
				FFmpegPath:  config.GetFFmpegPath(),
				Display:     config.GetCaptureDisplay(),
				AudioDevice: config.GetCaptureAudioDevice(),
				Audio:       audio,
				Width:       width,
				Height:      height,
				FrameRate:   30,
				Logger:      logger,
			})
		},
		OutputDir: dir,
		Name:      opts.Name,
		Audio:     audio,
		Tracker:   tracker,
		Catalog:   catalog,
		LockPath:  config.GetRecordLockPath(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var srv *server.Server
	if opts.Preview {
		srv = server.NewServer(config.GetServerPort(), controller)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()
		fmt.Printf("Live preview: http://127.0.0.1:%d\n", config.GetServerPort())
	}

	// Subscribe before starting so a terminal failure can never slip
	// past the wait loop below.
	subID, events := controller.Subscribe()
	defer controller.Unsubscribe(subID)

	status, err := controller.StartRecording(context.Background())
	if err != nil {
		return err
	}
	color.Green("● Recording to %s", status.OutputPath)
	if opts.Duration > 0 {
		fmt.Printf("  Stopping automatically after %s\n", opts.Duration)
	} else {
		fmt.Println("  Press Ctrl-C to stop")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timeout <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-sigCh:
			fmt.Println()
			return stopAndReport(controller, opts, logger)
		case <-timeout:
			return stopAndReport(controller, opts, logger)
		case ev, open := <-events:
			if !open {
				return stopAndReport(controller, opts, logger)
			}
			switch ev.Type {
			case "failed":
				// The pipeline already reached its terminal state;
				// there is nothing left to stop.
				color.Red("✗ Recording failed: %s", ev.Reason)
				return fmt.Errorf("recording failed")
			case "completed":
				// Finalized from elsewhere, e.g. a preview client.
				reportSaved(ev.Path, opts, logger)
				return nil
			}
		}
	}
}

func stopAndReport(controller *server.Controller, opts *RecordOptions, logger *slog.Logger) error {
	res, err := controller.StopRecording()
	if err != nil {
		return err
	}
	if res.Err != nil {
		color.Red("✗ Recording failed: %v", res.Err)
		return fmt.Errorf("recording failed")
	}
	reportSaved(res.Path, opts, logger)
	return nil
}

func reportSaved(path string, opts *RecordOptions, logger *slog.Logger) {
	color.Green("✓ Recording saved: %s", path)
	if opts.Open {
		if err := browser.OpenFile(path); err != nil {
			logger.Warn("Failed to open recording", "error", err)
		}
	}
}
