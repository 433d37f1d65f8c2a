package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reelcap/reelcap/config"
	"github.com/reelcap/reelcap/internal/capture"
	"github.com/reelcap/reelcap/internal/deps"
	"github.com/reelcap/reelcap/internal/library"
	"github.com/reelcap/reelcap/internal/server"
	"github.com/reelcap/reelcap/internal/util"
	"github.com/reelcap/reelcap/internal/zoom"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control and preview server",
		Long: `Serve the recording control API, the WebSocket status/zoom channel,
and the live preview stream on localhost. Recordings started over the
API land in the configured recordings directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
		Example: `  # Serve on the configured port (default 29777)
  reelcap serve

  # Serve on a specific port
  reelcap serve --port 8080`,
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (default: configured port)")
	return cmd
}

func runServe(port int) error {
	if err := deps.Require("ffmpeg", config.GetFFmpegPath()); err != nil {
		return err
	}
	if port == 0 {
		port = config.GetServerPort()
	}

	audio := config.GetCaptureAudio()
	width, height := capture.DetectDisplaySize()
	logger := util.GetLogger()

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
		OutputDir: config.GetRecordingsDir(),
		Audio:     audio,
		Tracker:   zoom.NewTracker(config.GetZoomSmoothing(), width, height, nil),
		Catalog:   library.NewCatalog(config.GetCatalogPath(), 1024),
		LockPath:  config.GetRecordLockPath(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	srv := server.NewServer(port, controller)
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Printf("reelcap serving on http://127.0.0.1:%d (Ctrl-C to stop)\n", port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println()

	return srv.Stop()
}
