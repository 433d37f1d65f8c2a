package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/utils/keymutex"

	"github.com/reelcap/reelcap/internal/util"
)

// commandContext is swapped in tests to fake the ffmpeg binary.
var commandContext = exec.CommandContext

// stderrTailLines bounds how much ffmpeg stderr is kept for error
// reporting.
const stderrTailLines = 12

// Progress is a point-in-time report of a running export.
type Progress struct {
	Percent float64
	OutTime time.Duration
	Speed   string
}

// Options tune an export beyond the target canvas.
type Options struct {
	// Zoom > 1 renders a magnified view around the focus point
	// instead of the full frame.
	Zoom   float64
	FocusX float64
	FocusY float64
	// Overscan overrides DefaultOverscan when > 0.
	Overscan float64
}

// Job describes one export. ID is assigned on submission when empty.
type Job struct {
	ID              string
	SourcePath      string
	DestinationPath string
	Target          Dimensions
	Options         Options
	OnProgress      func(Progress)
}

// Transcoder renders finished recordings into new canvases with
// ffmpeg. Exports of the same source file are serialized; different
// sources may export concurrently.
type Transcoder struct {
	ffmpegPath string
	logger     *slog.Logger
	locks      keymutex.KeyMutex
}

func NewTranscoder(ffmpegPath string, logger *slog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	return &Transcoder{
		ffmpegPath: ffmpegPath,
		logger:     logger,
		locks:      keymutex.NewHashed(0),
	}
}

// Export renders job.SourcePath into the target canvas and returns the
// destination path. The source file is never modified, so exporting a
// finished recording is safe while another recording is in flight. On
// failure any partial output is removed.
func (t *Transcoder) Export(ctx context.Context, job Job) (string, error) {
	if job.SourcePath == "" {
		return "", fmt.Errorf("source path required")
	}
	if job.Target.Width <= 0 || job.Target.Height <= 0 {
		return "", fmt.Errorf("invalid target dimensions %s", job.Target)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	dest := job.DestinationPath
	if dest == "" {
		dest = DestinationPath(job.SourcePath, job.Target)
	}

	t.locks.LockKey(job.SourcePath)
	defer t.locks.UnlockKey(job.SourcePath)

	info, err := Probe(job.SourcePath)
	if err != nil {
		return "", err
	}
	if info.DurationSeconds <= 0 {
		return "", fmt.Errorf("source has no playable duration: %s", job.SourcePath)
	}

	graph, err := buildFiltergraph(info, job.Target, job.Options)
	if err != nil {
		return "", err
	}
	args := buildExportArgs(job.SourcePath, dest, graph, info.HasAudio)

	t.logger.Info("Starting export",
		"job", job.ID,
		"source", job.SourcePath,
		"dest", dest,
		"target", job.Target.String(),
		"duration", info.DurationSeconds,
		"filter", graph)

	cmd := commandContext(ctx, t.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", errors.Wrap(err, "creating ffmpeg stdout pipe")
	}
	tail := &tailBuffer{limit: stderrTailLines}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return "", errors.Wrap(err, "starting ffmpeg")
	}

	t.consumeProgress(stdout, info.DurationSeconds, job.OnProgress)

	if err := cmd.Wait(); err != nil {
		if removeErr := os.Remove(dest); removeErr != nil && !os.IsNotExist(removeErr) {
			t.logger.Warn("Failed to remove partial export", "dest", dest, "error", removeErr)
		}
		if detail := tail.String(); detail != "" {
			return "", errors.Wrapf(err, "ffmpeg export failed: %s", detail)
		}
		return "", errors.Wrap(err, "ffmpeg export failed")
	}

	st, err := os.Stat(dest)
	if err != nil {
		return "", errors.Wrap(err, "inspecting export output")
	}
	if st.Size() == 0 {
		os.Remove(dest)
		return "", fmt.Errorf("export produced an empty file")
	}

	t.logger.Info("Export completed", "dest", dest, "size", st.Size())
	return dest, nil
}

// consumeProgress parses the key=value stream ffmpeg emits with
// -progress pipe:1. Each block ends with a progress= line, which is
// when the callback fires. Unparsable lines are skipped.
func (t *Transcoder) consumeProgress(r io.Reader, durationSeconds float64, onProgress func(Progress)) {
	scanner := bufio.NewScanner(r)
	var current Progress
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			current.OutTime = time.Duration(us) * time.Microsecond
			if durationSeconds > 0 {
				current.Percent = math.Min(100, current.OutTime.Seconds()/durationSeconds*100)
			}
		case "speed":
			current.Speed = value
		case "progress":
			if value == "end" {
				current.Percent = 100
			}
			if onProgress != nil {
				onProgress(current)
			}
		}
	}
}

// buildExportArgs assembles the ffmpeg invocation for one export. The
// video track is always re-encoded through the filter chain; audio is
// copied as-is since the transform never touches it.
func buildExportArgs(sourcePath, destPath, graph string, hasAudio bool) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-i", sourcePath,
		"-vf", graph,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "18",
		"-movflags", "+faststart",
	}
	if hasAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-progress", "pipe:1", "-nostats", "-y", destPath)
	return args
}

// tailBuffer keeps the last few lines written to it. ffmpeg is chatty
// on stderr; only the tail is useful in an error message.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.lines = append(b.lines, line)
		if len(b.lines) > b.limit {
			b.lines = b.lines[len(b.lines)-b.limit:]
		}
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "; ")
}
