package preview

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
)

// WebMMuxer writes the live H.264/AAC preview into a WebM container
// for clients that cannot consume fragmented MP4. One muxer serves one
// client; it writes straight into the client's connection.
type WebMMuxer struct {
	writer      io.Writer
	videoWriter webm.BlockWriteCloser
	audioWriter webm.BlockWriteCloser
	logger      *slog.Logger
	initialized bool
	audio       bool
	width       int
	height      int
}

// NewWebMMuxer creates a muxer for the given frame size. When audio is
// false only the video track is declared.
func NewWebMMuxer(w io.Writer, width, height int, audio bool) *WebMMuxer {
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	return &WebMMuxer{
		writer: w,
		logger: slog.With("component", "webm_preview"),
		audio:  audio,
		width:  width,
		height: height,
	}
}

// writerCloser marks the underlying writer closed on the first write
// error so a disconnected client stops the muxer instead of spamming
// errors.
type writerCloser struct {
	writer io.Writer
	closed bool
}

func (wc *writerCloser) Write(p []byte) (int, error) {
	if wc.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := wc.writer.Write(p)
	if err != nil {
		wc.closed = true
	}
	return n, err
}

func (wc *writerCloser) Close() error {
	wc.closed = true
	return nil
}

// WriteHeader declares the tracks and emits the WebM header. Idempotent.
func (m *WebMMuxer) WriteHeader() error {
	if m.initialized {
		return nil
	}

	tracks := []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         "V_MPEG4/ISO/AVC",
			TrackType:       1,
			DefaultDuration: 33333333, // ~30fps in nanoseconds
			Video: &webm.Video{
				PixelWidth:  uint64(m.width),
				PixelHeight: uint64(m.height),
			},
		},
	}
	if m.audio {
		tracks = append(tracks, webm.TrackEntry{
			Name:            "Audio",
			TrackNumber:     2,
			TrackUID:        2,
			CodecID:         "A_AAC",
			TrackType:       2,
			DefaultDuration: 23219954, // 1024 samples at 44.1 kHz
			Audio: &webm.Audio{
				SamplingFrequency: 44100.0,
				Channels:          2,
			},
		})
	}

	writers, err := webm.NewSimpleBlockWriter(&writerCloser{writer: m.writer}, tracks,
		mkvcore.WithOnFatalHandler(func(err error) {
			m.logger.Warn("WebM write error, client must reconnect", "error", err)
			m.initialized = false
			m.videoWriter = nil
			m.audioWriter = nil
		}))
	if err != nil {
		return fmt.Errorf("creating WebM writer: %w", err)
	}

	m.videoWriter = writers[0]
	if m.audio {
		m.audioWriter = writers[1]
	}
	m.initialized = true
	m.logger.Debug("WebM preview container initialized", "width", m.width, "height", m.height, "audio", m.audio)
	return nil
}

// WriteVideo writes one Annex-B H.264 access unit at the given
// pipeline-relative timestamp.
func (m *WebMMuxer) WriteVideo(data []byte, keyframe bool, ts time.Duration) error {
	if !m.initialized || m.videoWriter == nil {
		return fmt.Errorf("webm muxer not initialized")
	}
	if len(data) == 0 {
		return nil
	}
	_, err := m.videoWriter.Write(keyframe, ts.Nanoseconds(), data)
	return err
}

// WriteAudio writes one raw AAC access unit.
func (m *WebMMuxer) WriteAudio(data []byte, ts time.Duration) error {
	if !m.initialized || m.audioWriter == nil {
		return fmt.Errorf("webm muxer has no audio track")
	}
	if len(data) == 0 {
		return nil
	}
	_, err := m.audioWriter.Write(true, ts.Nanoseconds(), data)
	return err
}

// Close finalizes the container. The preview stream is unbounded, so
// this only matters for flushing the last cluster on disconnect.
func (m *WebMMuxer) Close() error {
	if m.videoWriter != nil {
		if err := m.videoWriter.Close(); err != nil {
			m.logger.Debug("Video writer close", "error", err)
		}
		m.videoWriter = nil
	}
	if m.audioWriter != nil {
		if err := m.audioWriter.Close(); err != nil {
			m.logger.Debug("Audio writer close", "error", err)
		}
		m.audioWriter = nil
	}
	m.initialized = false
	return nil
}
