package capture

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/reelcap/reelcap/internal/media"
	"github.com/reelcap/reelcap/internal/util"
)

const stopGraceTimeout = 3 * time.Second

// Config describes one display-grab capture.
type Config struct {
	FFmpegPath  string
	Display     string // grab input; empty selects a per-platform default
	AudioDevice string // audio input; empty selects a per-platform default
	Audio       bool
	Width       int
	Height      int
	FrameRate   int
	Logger      *slog.Logger
}

// FFmpegSource captures one display by spawning a single ffmpeg
// process (grab + realtime H.264/AAC encode) and demuxing the MPEG-TS
// it emits on stdout. Process death while running is a source failure;
// subscribers observe it as channel closure.
type FFmpegSource struct {
	cfg    Config
	hub    *Hub
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	running  bool
	stopping bool
	failure  error
	done     chan struct{}
}

// NewFFmpegSource validates the config and creates a stopped source.
func NewFFmpegSource(cfg Config) (*FFmpegSource, error) {
	if cfg.FFmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg path is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Logger == nil {
		cfg.Logger = util.GetLogger()
	}
	return &FFmpegSource{
		cfg:    cfg,
		hub:    NewHub(),
		logger: cfg.Logger,
	}, nil
}

// Hub exposes the sample fan-out for preview consumers.
func (s *FFmpegSource) Hub() *Hub {
	return s.hub
}

// Start spawns the capture process. A stopped source can be started
// again, which is how the recording pipeline recovers from a dead
// capture process.
func (s *FFmpegSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture already running")
	}

	args := buildCaptureArgs(s.cfg)
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, s.cfg.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return errors.Wrap(err, "opening ffmpeg stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return errors.Wrap(err, "opening ffmpeg stderr")
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return errors.Wrap(err, "starting ffmpeg capture")
	}

	s.cmd = cmd
	s.cancel = cancel
	s.running = true
	s.stopping = false
	s.failure = nil
	s.done = make(chan struct{})

	s.logger.Info("Capture started",
		"pid", cmd.Process.Pid,
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"fps", s.cfg.FrameRate,
		"audio", s.cfg.Audio)

	// ffmpeg writes its banner and progress to stderr; keep it at
	// debug level so -v surfaces encoder diagnostics.
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			s.logger.Debug("ffmpeg", "line", scanner.Text())
		}
	}()

	go func() {
		demuxer := newTSDemuxer(s.hub, s.logger)
		if err := demuxer.run(procCtx, stdout); err != nil && procCtx.Err() == nil {
			s.logger.Warn("Capture demux ended", "error", err)
		}
	}()

	go s.reap(cmd, cancel)

	return nil
}

// reap waits for the process, records unexpected exits as the source
// failure, and releases subscribers.
func (s *FFmpegSource) reap(cmd *exec.Cmd, cancel context.CancelFunc) {
	waitErr := cmd.Wait()
	cancel()

	s.mu.Lock()
	s.running = false
	wasStopping := s.stopping
	if !wasStopping {
		if waitErr != nil {
			s.failure = errors.Wrap(waitErr, "capture process exited")
		} else {
			s.failure = fmt.Errorf("capture process exited unexpectedly")
		}
	}
	close(s.done)
	s.mu.Unlock()

	if wasStopping {
		s.logger.Info("Capture stopped", "error", waitErr)
	} else {
		s.logger.Warn("Capture process died", "error", waitErr)
	}
	s.hub.CloseSubscribers()
}

// Stop terminates the capture process, first with SIGTERM, then with a
// hard kill after a grace period. Safe to call repeatedly.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	done := s.done
	cancel := s.cancel
	var proc = s.cmd.Process
	alreadyStopping := s.stopping || !s.running
	s.stopping = true
	s.mu.Unlock()

	if alreadyStopping {
		<-done
		return nil
	}

	if proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			proc.Kill()
		}
	}

	select {
	case <-done:
	case <-time.After(stopGraceTimeout):
		s.logger.Warn("Capture did not exit in time, killing")
		cancel()
		<-done
	}
	return nil
}

// Err returns the failure that terminated the capture, nil after a
// clean stop.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *FFmpegSource) SubscribeVideo(id string, bufferSize int) <-chan media.VideoSample {
	return s.hub.SubscribeVideo(id, bufferSize)
}

func (s *FFmpegSource) UnsubscribeVideo(id string) {
	s.hub.UnsubscribeVideo(id)
}

func (s *FFmpegSource) SubscribeAudio(id string, bufferSize int) <-chan media.AudioSample {
	return s.hub.SubscribeAudio(id, bufferSize)
}

func (s *FFmpegSource) UnsubscribeAudio(id string) {
	s.hub.UnsubscribeAudio(id)
}

func (s *FFmpegSource) ParameterSets() ([]byte, []byte) {
	return s.hub.ParameterSets()
}

func (s *FFmpegSource) Dimensions() (int, int) {
	return s.cfg.Width, s.cfg.Height
}

// buildCaptureArgs assembles the ffmpeg invocation: per-platform grab
// input, fixed realtime encoding policy, MPEG-TS on stdout.
func buildCaptureArgs(cfg Config) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	size := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	rate := strconv.Itoa(cfg.FrameRate)

	switch runtime.GOOS {
	case "darwin":
		display := cfg.Display
		if display == "" {
			display = "1"
		}
		input := display
		if cfg.Audio {
			audio := cfg.AudioDevice
			if audio == "" {
				audio = "0"
			}
			input = display + ":" + audio
		}
		args = append(args,
			"-f", "avfoundation",
			"-capture_cursor", "1",
			"-framerate", rate,
			"-i", input,
		)
	case "windows":
		args = append(args,
			"-f", "gdigrab",
			"-framerate", rate,
			"-video_size", size,
			"-i", "desktop",
		)
		if cfg.Audio {
			audio := cfg.AudioDevice
			if audio == "" {
				audio = "virtual-audio-capturer"
			}
			args = append(args, "-f", "dshow", "-i", "audio="+audio)
		}
	default: // linux and the rest of the X11 world
		display := cfg.Display
		if display == "" {
			display = ":0.0"
		}
		args = append(args,
			"-f", "x11grab",
			"-framerate", rate,
			"-video_size", size,
			"-i", display,
		)
		if cfg.Audio {
			audio := cfg.AudioDevice
			if audio == "" {
				audio = "default"
			}
			args = append(args, "-f", "pulse", "-i", audio)
		}
	}

	// Realtime encode: H.264 up to 10 Mbps (12 cap), 1 s keyframes, no
	// B-frames so PTS stays monotonic; AAC-LC 44.1 kHz stereo.
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-b:v", "10M",
		"-maxrate", "12M",
		"-bufsize", "24M",
		"-g", rate,
		"-bf", "0",
	)
	if cfg.Audio {
		args = append(args,
			"-c:a", "aac",
			"-b:a", "128k",
			"-ar", "44100",
			"-ac", "2",
		)
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-f", "mpegts", "pipe:1")
	return args
}
