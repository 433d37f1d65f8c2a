package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/reelcap/reelcap/internal/media"
	"github.com/reelcap/reelcap/internal/util"
)

// WriterState is the lifecycle state of a ContainerWriter.
type WriterState int32

const (
	StateIdle WriterState = iota
	StateWriting
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s WriterState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Defaults for WriterConfig fields left zero.
const (
	DefaultMinBytes      = 1024
	DefaultFlushInterval = 150 * time.Millisecond
	DefaultDrainGrace    = 300 * time.Millisecond
	DefaultVideoQueue    = 128
	DefaultAudioQueue    = 256
)

// ParamsProvider supplies the current H.264 parameter sets, typically
// backed by the capture hub's cache. Either slice may be empty when
// no keyframe has been observed yet.
type ParamsProvider func() (sps, pps []byte)

// MirrorSink receives a live copy of every byte written to the
// container, split into the init segment and the media parts that
// follow it. Implementations must not block.
type MirrorSink interface {
	SetInitSegment(data []byte)
	Broadcast(data []byte)
}

// Counters reports how samples fared on their way into the container.
type Counters struct {
	VideoAccepted uint64
	VideoDropped  uint64
	AudioAccepted uint64
	AudioDropped  uint64
	Rejected      uint64
}

// Result is the terminal outcome of a writer.
type Result struct {
	State WriterState
	Path  string
	Err   error
}

// WriterConfig configures a ContainerWriter.
type WriterConfig struct {
	Path   string
	Sync   *Synchronizer
	Params ParamsProvider
	Audio  bool
	Mirror MirrorSink

	MinBytes      int64
	FlushInterval time.Duration
	DrainGrace    time.Duration
	VideoQueue    int
	AudioQueue    int

	// OnFailure is invoked asynchronously when the writer fails off
	// the stop path, e.g. a batch append error.
	OnFailure func(error)

	Logger *slog.Logger
}

// ContainerWriter turns normalized samples into a fragmented MP4 file.
//
// It starts idle; the first sample that can resolve parameter sets
// opens the file, writes the init segment, and moves the writer to
// writing. Samples offered in any other state are dropped and
// counted. Accepted samples are queued without blocking and a drain
// goroutine batches them to disk on a fixed interval. Stop drains,
// finalizes, and reports completed or failed; both outcomes are
// terminal.
type ContainerWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	videoQ chan media.VideoSample
	audioQ chan media.AudioSample

	finalizing atomic.Bool
	stopOnce   sync.Once
	stopCh     chan struct{}
	doneCh     chan struct{}

	mu          sync.Mutex
	state       WriterState
	counters    Counters
	file        *os.File
	frag        *fragmentWriter
	loopStarted bool
	result      Result
	resultSet   bool
	resultCh    chan struct{}
}

func NewContainerWriter(cfg WriterConfig) *ContainerWriter {
	if cfg.Logger == nil {
		cfg.Logger = util.GetLogger()
	}
	if cfg.Sync == nil {
		cfg.Sync = NewSynchronizer(cfg.Logger)
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinBytes
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = DefaultDrainGrace
	}
	if cfg.VideoQueue <= 0 {
		cfg.VideoQueue = DefaultVideoQueue
	}
	if cfg.AudioQueue <= 0 {
		cfg.AudioQueue = DefaultAudioQueue
	}

	return &ContainerWriter{
		cfg:      cfg,
		logger:   cfg.Logger,
		videoQ:   make(chan media.VideoSample, cfg.VideoQueue),
		audioQ:   make(chan media.AudioSample, cfg.AudioQueue),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		resultCh: make(chan struct{}),
		frag:     newFragmentWriter(cfg.Logger),
	}
}

// OfferVideo submits a video access unit. It never blocks: samples
// are dropped when the writer is not accepting or its queue is full.
func (w *ContainerWriter) OfferVideo(s media.VideoSample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateIdle {
		w.openLocked(s.Data)
	}
	if w.state != StateWriting {
		w.counters.VideoDropped++
		return
	}

	normalized, ok := w.cfg.Sync.Accept(media.KindVideo, s.PTS)
	if !ok {
		return
	}
	s.PTS = normalized

	select {
	case w.videoQ <- s:
		w.counters.VideoAccepted++
	default:
		w.counters.VideoDropped++
		w.logger.Debug("Video queue full, dropping sample", "ptsUs", s.PTS)
	}
}

// OfferAudio submits an AAC access unit. Same non-blocking contract
// as OfferVideo.
func (w *ContainerWriter) OfferAudio(s media.AudioSample) {
	if !w.cfg.Audio {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateIdle {
		w.openLocked(nil)
	}
	if w.state != StateWriting {
		w.counters.AudioDropped++
		return
	}

	normalized, ok := w.cfg.Sync.Accept(media.KindAudio, s.PTS)
	if !ok {
		return
	}
	s.PTS = normalized

	select {
	case w.audioQ <- s:
		w.counters.AudioAccepted++
	default:
		w.counters.AudioDropped++
		w.logger.Debug("Audio queue full, dropping sample", "ptsUs", s.PTS)
	}
}

// openLocked attempts the idle -> writing transition. Parameter sets
// come from the provider, or from the offered access unit itself when
// it carries them in-band. If neither resolves them the writer stays
// idle and the caller counts the drop.
func (w *ContainerWriter) openLocked(accessUnit []byte) {
	var sps, pps []byte
	if w.cfg.Params != nil {
		sps, pps = w.cfg.Params()
	}
	if (len(sps) == 0 || len(pps) == 0) && accessUnit != nil {
		if info, err := media.InspectAccessUnit(accessUnit); err == nil && len(info.SPS) > 0 && len(info.PPS) > 0 {
			sps, pps = info.SPS, info.PPS
		}
	}
	if len(sps) == 0 || len(pps) == 0 {
		w.logger.Debug("Waiting for parameter sets before opening container", "path", w.cfg.Path)
		return
	}

	file, err := os.Create(w.cfg.Path)
	if err != nil {
		w.failLocked(errors.Wrap(err, "opening output file"))
		return
	}
	w.file = file

	initSegment, err := w.frag.marshalInit(sps, pps, w.cfg.Audio)
	if err != nil {
		w.failLocked(errors.Wrap(err, "building init segment"))
		return
	}
	if _, err := file.Write(initSegment); err != nil {
		w.failLocked(errors.Wrap(err, "writing init segment"))
		return
	}
	if w.cfg.Mirror != nil {
		w.cfg.Mirror.SetInitSegment(initSegment)
	}

	w.state = StateWriting
	w.loopStarted = true
	go w.drainLoop()
	w.logger.Info("Recording container opened", "path", w.cfg.Path, "audio", w.cfg.Audio)
}

func (w *ContainerWriter) drainLoop() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.flush()
			return
		case <-ticker.C:
			if !w.flush() {
				return
			}
		}
	}
}

// flush drains both queues into one part and appends it to the file.
// Returns false when the writer has failed and the loop should exit.
func (w *ContainerWriter) flush() bool {
	video := w.drainVideo()
	audio := w.drainAudio()
	if len(video) == 0 && len(audio) == 0 {
		return true
	}

	payload, err := w.frag.marshalBatch(video, audio)
	if err != nil {
		w.fail(errors.Wrap(err, "encoding media batch"))
		return false
	}
	if len(payload) == 0 {
		return true
	}

	w.mu.Lock()
	file := w.file
	w.mu.Unlock()
	if file == nil {
		return false
	}
	if _, err := file.Write(payload); err != nil {
		w.fail(errors.Wrap(err, "appending media batch"))
		return false
	}
	if w.cfg.Mirror != nil {
		w.cfg.Mirror.Broadcast(payload)
	}
	return true
}

func (w *ContainerWriter) drainVideo() []media.VideoSample {
	var out []media.VideoSample
	for {
		select {
		case s := <-w.videoQ:
			out = append(out, s)
		default:
			return out
		}
	}
}

func (w *ContainerWriter) drainAudio() []media.AudioSample {
	var out []media.AudioSample
	for {
		select {
		case s := <-w.audioQ:
			out = append(out, s)
		default:
			return out
		}
	}
}

// Stop finalizes the recording and returns the terminal result. It is
// idempotent: concurrent and repeated calls all observe the outcome
// of the first one. Stopping a writer that never left idle fails with
// a "no samples" error and leaves no file behind.
func (w *ContainerWriter) Stop() Result {
	if !w.finalizing.CompareAndSwap(false, true) {
		<-w.resultCh
		return w.snapshotResult()
	}

	w.mu.Lock()
	switch w.state {
	case StateIdle:
		w.state = StateFailed
		res := Result{State: StateFailed, Path: w.cfg.Path, Err: fmt.Errorf("no samples were captured")}
		w.setResultLocked(res)
		w.mu.Unlock()
		w.logger.Warn("Stopping before any sample was written", "path", w.cfg.Path)
		return res
	case StateCompleted, StateFailed:
		res := w.result
		w.mu.Unlock()
		return res
	}

	w.state = StateFinalizing
	w.mu.Unlock()
	w.logger.Info("Finalizing recording", "path", w.cfg.Path)

	// Grace window: offers are rejected from here on, but samples
	// already queued still get flushed by the drain loop.
	time.Sleep(w.cfg.DrainGrace)
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateFailed {
		return w.result
	}
	return w.finalizeLocked()
}

func (w *ContainerWriter) finalizeLocked() Result {
	failWith := func(err error) Result {
		w.state = StateFailed
		os.Remove(w.cfg.Path)
		res := Result{State: StateFailed, Path: w.cfg.Path, Err: err}
		w.setResultLocked(res)
		w.logger.Error("Finalizing recording failed", "path", w.cfg.Path, "error", err)
		return res
	}

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return failWith(errors.Wrap(err, "flushing output file"))
	}
	if err := w.file.Close(); err != nil {
		return failWith(errors.Wrap(err, "closing output file"))
	}

	info, err := os.Stat(w.cfg.Path)
	if err != nil {
		return failWith(errors.Wrap(err, "inspecting output file"))
	}
	if info.Size() < w.cfg.MinBytes {
		return failWith(fmt.Errorf("output too small to be a valid recording (%d bytes)", info.Size()))
	}

	videoCount, audioCount := w.frag.stats()
	w.state = StateCompleted
	res := Result{State: StateCompleted, Path: w.cfg.Path}
	w.setResultLocked(res)
	w.logger.Info("Recording completed", "path", w.cfg.Path, "size", info.Size(),
		"videoSamples", videoCount, "audioSamples", audioCount)
	return res
}

// Abort tears the writer down without finalizing, for session
// recovery. The file is closed and left in place; the caller decides
// whether it survives.
func (w *ContainerWriter) Abort(reason error) {
	w.mu.Lock()
	if w.state != StateCompleted && w.state != StateFailed {
		w.state = StateFailed
		if w.file != nil {
			w.file.Close()
		}
		w.setResultLocked(Result{State: StateFailed, Path: w.cfg.Path, Err: reason})
		w.logger.Debug("Recording writer aborted", "path", w.cfg.Path, "reason", reason)
	}
	started := w.loopStarted
	w.mu.Unlock()

	if started {
		w.stopOnce.Do(func() { close(w.stopCh) })
		<-w.doneCh
	}
}

// fail marks the writer failed off the stop path: the file is closed
// and left on disk, and OnFailure fires asynchronously.
func (w *ContainerWriter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failLocked(err)
}

func (w *ContainerWriter) failLocked(err error) {
	if w.state == StateCompleted || w.state == StateFailed {
		return
	}
	w.state = StateFailed
	if w.file != nil {
		w.file.Close()
	}
	w.setResultLocked(Result{State: StateFailed, Path: w.cfg.Path, Err: err})
	w.logger.Error("Recording writer failed", "path", w.cfg.Path, "error", err)
	if w.cfg.OnFailure != nil {
		go w.cfg.OnFailure(err)
	}
}

func (w *ContainerWriter) setResultLocked(res Result) {
	if w.resultSet {
		return
	}
	w.result = res
	w.resultSet = true
	close(w.resultCh)
}

func (w *ContainerWriter) snapshotResult() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

// State returns the writer's current lifecycle state.
func (w *ContainerWriter) State() WriterState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Counters returns a snapshot of the sample accounting, including
// out-of-order rejections recorded by the synchronizer.
func (w *ContainerWriter) Counters() Counters {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.counters
	c.Rejected = w.cfg.Sync.Rejected()
	return c
}

// Path returns the output path this writer targets.
func (w *ContainerWriter) Path() string {
	return w.cfg.Path
}
