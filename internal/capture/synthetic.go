package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelcap/reelcap/internal/media"
	"github.com/reelcap/reelcap/internal/util"
)

// Fixture NAL units: a minimal but structurally valid 1280x720 H.264
// stream and one AAC access unit.
var (
	syntheticSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	syntheticPPS    = []byte{0x68, 0xce, 0x38, 0x80}
	syntheticIDR    = []byte{0x65, 0x88, 0x84, 0x00, 0x10}
	syntheticPFrame = []byte{0x41, 0x9a, 0x24, 0x8c, 0x09}
	syntheticAAC    = []byte{
		0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0e,
	}
)

const (
	syntheticGOP          = 30
	audioSamplesPerAccess = 1024
	audioSampleRate       = 44100
)

// SyntheticConfig tunes the fixture source.
type SyntheticConfig struct {
	FrameInterval time.Duration // video frame cadence, default 33 ms
	Audio         bool
	FailAfter     int // simulate a capture crash after N video frames; 0 = never
	Width         int
	Height        int
	Logger        *slog.Logger
}

// SyntheticSource emits fixture H.264/AAC samples on a timer. It backs
// the pipeline tests and behaves like FFmpegSource: failure closes all
// subscriber channels and is reported by Err, and a stopped or crashed
// source can be started again.
type SyntheticSource struct {
	cfg    SyntheticConfig
	hub    *Hub
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	stopping  bool
	failAfter int
	failure   error
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSyntheticSource creates a stopped synthetic source.
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 33 * time.Millisecond
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1280, 720
	}
	if cfg.Logger == nil {
		cfg.Logger = util.GetLogger()
	}
	return &SyntheticSource{
		cfg:       cfg,
		hub:       NewHub(),
		logger:    cfg.Logger,
		failAfter: cfg.FailAfter,
	}
}

// SetFailAfter rearms or disarms the simulated crash for runs already
// in flight.
func (s *SyntheticSource) SetFailAfter(frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = frames
}

// Hub exposes the sample fan-out for preview consumers.
func (s *SyntheticSource) Hub() *Hub {
	return s.hub
}

// Start begins emitting samples.
func (s *SyntheticSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.stopping = false
	s.failure = nil
	s.done = make(chan struct{})

	go s.run(runCtx)
	return nil
}

func (s *SyntheticSource) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	frame := 0
	audioPTS := int64(0)
	audioStep := int64(audioSamplesPerAccess) * 1_000_000 / audioSampleRate

	defer func() {
		s.mu.Lock()
		s.running = false
		close(s.done)
		s.mu.Unlock()
		s.hub.CloseSubscribers()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		failAfter := s.failAfter
		s.mu.Unlock()
		if failAfter > 0 && frame >= failAfter {
			s.mu.Lock()
			if !s.stopping {
				s.failure = fmt.Errorf("synthetic capture failed after %d frames", frame)
			}
			s.mu.Unlock()
			s.logger.Debug("Synthetic source failing on schedule", "frames", frame)
			return
		}

		pts := int64(frame) * s.cfg.FrameInterval.Microseconds()
		keyframe := frame%syntheticGOP == 0

		var au []byte
		if keyframe {
			au = annexBJoin(syntheticSPS, syntheticPPS, syntheticIDR)
			s.hub.CacheParameterSets(syntheticSPS, syntheticPPS)
		} else {
			au = annexBJoin(syntheticPFrame)
		}
		s.hub.PublishVideo(media.VideoSample{Data: au, IsKey: keyframe, PTS: pts})

		if s.cfg.Audio {
			for audioPTS <= pts {
				s.hub.PublishAudio(media.AudioSample{
					Data: media.CloneBytes(syntheticAAC),
					PTS:  audioPTS,
				})
				audioPTS += audioStep
			}
		}

		frame++
	}
}

// Stop halts emission and closes subscriber channels.
func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		return nil
	}
	done := s.done
	s.stopping = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Err returns the simulated failure, if any.
func (s *SyntheticSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *SyntheticSource) SubscribeVideo(id string, bufferSize int) <-chan media.VideoSample {
	return s.hub.SubscribeVideo(id, bufferSize)
}

func (s *SyntheticSource) UnsubscribeVideo(id string) {
	s.hub.UnsubscribeVideo(id)
}

func (s *SyntheticSource) SubscribeAudio(id string, bufferSize int) <-chan media.AudioSample {
	return s.hub.SubscribeAudio(id, bufferSize)
}

func (s *SyntheticSource) UnsubscribeAudio(id string) {
	s.hub.UnsubscribeAudio(id)
}

func (s *SyntheticSource) ParameterSets() ([]byte, []byte) {
	return s.hub.ParameterSets()
}

func (s *SyntheticSource) Dimensions() (int, int) {
	return s.cfg.Width, s.cfg.Height
}

// annexBJoin concatenates NAL units with 4-byte start codes.
func annexBJoin(nalus ...[]byte) []byte {
	size := 0
	for _, nalu := range nalus {
		size += 4 + len(nalu)
	}
	out := make([]byte, 0, size)
	for _, nalu := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, nalu...)
	}
	return out
}
