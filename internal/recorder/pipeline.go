package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/reelcap/reelcap/internal/capture"
	"github.com/reelcap/reelcap/internal/media"
	"github.com/reelcap/reelcap/internal/util"
)

// DefaultMaxRestarts bounds how many cold restarts a session may
// consume before the pipeline gives up.
const DefaultMaxRestarts = 3

// Callbacks observe pipeline progress. All of them are optional and
// must not block for long; they are invoked from pipeline goroutines.
type Callbacks struct {
	OnState     func(state WriterState, elapsedSeconds float64)
	OnCompleted func(path string)
	OnFailed    func(reason string)
}

// PipelineConfig configures a recording pipeline.
type PipelineConfig struct {
	Source    capture.Source
	OutputDir string
	// Name overrides the timestamped output file stem.
	Name  string
	Audio bool

	MaxRestarts   int
	MinBytes      int64
	FlushInterval time.Duration
	DrainGrace    time.Duration
	Mirror        MirrorSink
	Callbacks     Callbacks
	Clock         clock.WithTicker
	Logger        *slog.Logger
}

// Pipeline wires a capture source through a synchronizer into a
// container writer and supervises the whole session: it consumes the
// source's sample streams, recovers from capture failures with a
// bounded number of cold restarts against the same output path, and
// reports progress through callbacks.
//
// A Pipeline records exactly once. Create a new one per recording.
type Pipeline struct {
	cfg    PipelineConfig
	logger *slog.Logger
	clk    clock.WithTicker

	stopping atomic.Bool
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	recording  bool
	recovering bool
	restarts   int
	gen        int
	session    *Session
	writer     *ContainerWriter
	cancel     context.CancelFunc
	videoSubID string
	audioSubID string
	final      Result
	finalSet   bool
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("capture source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = util.GetLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		clk:    cfg.Clock,
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins capturing and recording. The context only bounds
// source startup; the session itself runs until Stop or a terminal
// failure.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.recording {
		p.mu.Unlock()
		return fmt.Errorf("a recording is already in progress")
	}

	session, err := NewSession(p.cfg.OutputDir, p.cfg.Name, p.clk.Now())
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.session = session
	p.restarts = 0

	if err := p.cfg.Source.Start(ctx); err != nil {
		p.mu.Unlock()
		return errors.Wrap(err, "starting capture")
	}

	p.startSessionLocked()
	p.recording = true
	p.mu.Unlock()

	p.logger.Info("Recording started", "id", session.ID, "path", session.OutputPath, "audio", p.cfg.Audio)
	p.emitState()
	return nil
}

// startSessionLocked builds a fresh synchronizer and writer against
// the session's output path and spawns the consume loops. Called with
// p.mu held, both at first start and on every cold restart.
func (p *Pipeline) startSessionLocked() {
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.gen++

	writer := NewContainerWriter(WriterConfig{
		Path:          p.session.OutputPath,
		Sync:          NewSynchronizer(p.logger),
		Params:        p.cfg.Source.ParameterSets,
		Audio:         p.cfg.Audio,
		Mirror:        p.cfg.Mirror,
		MinBytes:      p.cfg.MinBytes,
		FlushInterval: p.cfg.FlushInterval,
		DrainGrace:    p.cfg.DrainGrace,
		OnFailure: func(err error) {
			p.scheduleRecover(fmt.Sprintf("writer failure: %v", err))
		},
		Logger: p.logger,
	})
	p.writer = writer

	p.videoSubID = fmt.Sprintf("%s-g%d-video", p.session.ID, p.gen)
	videoCh := p.cfg.Source.SubscribeVideo(p.videoSubID, DefaultVideoQueue)
	p.wg.Add(1)
	go p.consumeVideo(runCtx, videoCh, writer)

	if p.cfg.Audio {
		p.audioSubID = fmt.Sprintf("%s-g%d-audio", p.session.ID, p.gen)
		audioCh := p.cfg.Source.SubscribeAudio(p.audioSubID, DefaultAudioQueue)
		p.wg.Add(1)
		go p.consumeAudio(runCtx, audioCh, writer)
	} else {
		p.audioSubID = ""
	}

	p.wg.Add(1)
	go p.reportLoop(runCtx, writer)
}

func (p *Pipeline) consumeVideo(ctx context.Context, ch <-chan media.VideoSample, writer *ContainerWriter) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				p.handleSourceLoss("video stream ended")
				return
			}
			writer.OfferVideo(s)
		}
	}
}

func (p *Pipeline) consumeAudio(ctx context.Context, ch <-chan media.AudioSample, writer *ContainerWriter) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				p.handleSourceLoss("audio stream ended")
				return
			}
			writer.OfferAudio(s)
		}
	}
}

// reportLoop surfaces state and elapsed time once per second.
func (p *Pipeline) reportLoop(ctx context.Context, writer *ContainerWriter) {
	defer p.wg.Done()
	cb := p.cfg.Callbacks.OnState
	if cb == nil {
		return
	}

	ticker := p.clk.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			cb(writer.State(), p.Elapsed())
		}
	}
}

// handleSourceLoss converts a closed sample stream into a recovery
// attempt, unless the pipeline is shutting down anyway.
func (p *Pipeline) handleSourceLoss(fallback string) {
	if p.stopping.Load() {
		return
	}
	reason := fallback
	if err := p.cfg.Source.Err(); err != nil {
		reason = err.Error()
	}
	p.scheduleRecover(reason)
}

// scheduleRecover runs recovery on its own goroutine so sample
// delivery paths never block on restart work.
func (p *Pipeline) scheduleRecover(reason string) {
	go p.recover(reason)
}

func (p *Pipeline) recover(reason string) {
	p.mu.Lock()
	if !p.recording || p.recovering || p.stopping.Load() {
		p.mu.Unlock()
		return
	}
	p.recovering = true
	p.restarts++
	attempt := p.restarts
	p.mu.Unlock()

	if attempt > p.maxRestarts() {
		p.logger.Error("Restart budget exhausted, abandoning recording",
			"restarts", attempt-1, "reason", reason)
		p.terminalFailure(fmt.Sprintf("recording failed after %d restarts: %s", attempt-1, reason))
		return
	}

	p.logger.Warn("Recovering recording session", "attempt", attempt,
		"maxRestarts", p.maxRestarts(), "reason", reason)
	p.teardownSession(fmt.Errorf("recovering session: %s", reason))

	if err := p.cfg.Source.Start(context.Background()); err != nil {
		p.terminalFailure(fmt.Sprintf("restarting capture: %v", err))
		return
	}

	p.mu.Lock()
	if p.stopping.Load() {
		p.recovering = false
		p.mu.Unlock()
		p.cfg.Source.Stop()
		return
	}
	p.startSessionLocked()
	p.recovering = false
	path := p.session.OutputPath
	p.mu.Unlock()

	p.logger.Info("Recording session recovered", "attempt", attempt, "path", path)
}

// teardownSession dismantles the current generation: cancel the
// consume loops, drop the source subscriptions, abort the writer, and
// stop the source. Safe to call more than once.
func (p *Pipeline) teardownSession(reason error) {
	p.mu.Lock()
	cancel := p.cancel
	writer := p.writer
	videoSubID, audioSubID := p.videoSubID, p.audioSubID
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if videoSubID != "" {
		p.cfg.Source.UnsubscribeVideo(videoSubID)
	}
	if audioSubID != "" {
		p.cfg.Source.UnsubscribeAudio(audioSubID)
	}
	if writer != nil {
		writer.Abort(reason)
	}
	if err := p.cfg.Source.Stop(); err != nil {
		p.logger.Debug("Stopping capture during teardown", "error", err)
	}
	p.wg.Wait()
}

// terminalFailure abandons the session. The partial file survives
// only if it is large enough to be worth keeping.
func (p *Pipeline) terminalFailure(reason string) {
	p.teardownSession(errors.New(reason))
	p.applyRetentionPolicy()

	p.mu.Lock()
	p.recording = false
	p.recovering = false
	path := ""
	if p.session != nil {
		path = p.session.OutputPath
	}
	p.mu.Unlock()

	p.finish(Result{State: StateFailed, Path: path, Err: errors.New(reason)})
}

// applyRetentionPolicy discards the output file when it is too small
// to be a usable recording.
func (p *Pipeline) applyRetentionPolicy() {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return
	}

	info, err := os.Stat(session.OutputPath)
	if err != nil {
		return
	}
	if info.Size() < p.minBytes() {
		os.Remove(session.OutputPath)
		p.logger.Info("Discarded partial recording below minimum size",
			"path", session.OutputPath, "size", info.Size())
		return
	}
	p.logger.Info("Keeping partial recording", "path", session.OutputPath, "size", info.Size())
}

// Stop finalizes the recording and returns the terminal result.
// Concurrent calls all observe the first call's outcome.
func (p *Pipeline) Stop() Result {
	if !p.stopping.CompareAndSwap(false, true) {
		<-p.doneCh
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.final
	}

	p.mu.Lock()
	if !p.recording {
		p.mu.Unlock()
		res := Result{State: StateFailed, Err: fmt.Errorf("no active recording")}
		p.finish(res)
		return res
	}
	writer := p.writer
	p.mu.Unlock()

	p.logger.Info("Stopping recording", "path", writer.Path())
	res := writer.Stop()
	p.teardownSession(fmt.Errorf("recording stopped"))

	if res.State == StateFailed {
		p.applyRetentionPolicy()
	}

	p.mu.Lock()
	p.recording = false
	p.mu.Unlock()

	p.finish(res)
	return res
}

// finish records the terminal result exactly once and notifies the
// callbacks.
func (p *Pipeline) finish(res Result) {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.final = res
		p.finalSet = true
		p.mu.Unlock()
		close(p.doneCh)

		if res.State == StateCompleted {
			if cb := p.cfg.Callbacks.OnCompleted; cb != nil {
				cb(res.Path)
			}
		} else {
			reason := "recording failed"
			if res.Err != nil {
				reason = res.Err.Error()
			}
			if cb := p.cfg.Callbacks.OnFailed; cb != nil {
				cb(reason)
			}
		}
		if cb := p.cfg.Callbacks.OnState; cb != nil {
			cb(res.State, p.Elapsed())
		}
	})
}

func (p *Pipeline) emitState() {
	if cb := p.cfg.Callbacks.OnState; cb != nil {
		cb(p.State(), p.Elapsed())
	}
}

// Done is closed once the pipeline reaches a terminal result.
func (p *Pipeline) Done() <-chan struct{} {
	return p.doneCh
}

// Result returns the terminal result, if one has been reached.
func (p *Pipeline) Result() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.final, p.finalSet
}

// Recording reports whether a session is active.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// State returns the current writer state, or idle before any
// recording started.
func (p *Pipeline) State() WriterState {
	p.mu.Lock()
	writer := p.writer
	p.mu.Unlock()
	if writer == nil {
		return StateIdle
	}
	return writer.State()
}

// Elapsed returns seconds since the session began.
func (p *Pipeline) Elapsed() float64 {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return 0
	}
	return p.clk.Since(session.StartedAt).Seconds()
}

// OutputPath returns the session's output path, or "" before Start.
func (p *Pipeline) OutputPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ""
	}
	return p.session.OutputPath
}

// Counters returns the current writer's sample accounting.
func (p *Pipeline) Counters() Counters {
	p.mu.Lock()
	writer := p.writer
	p.mu.Unlock()
	if writer == nil {
		return Counters{}
	}
	return writer.Counters()
}

// Restarts returns how many cold restarts the session has consumed.
func (p *Pipeline) Restarts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restarts
}

func (p *Pipeline) maxRestarts() int {
	if p.cfg.MaxRestarts > 0 {
		return p.cfg.MaxRestarts
	}
	return DefaultMaxRestarts
}

func (p *Pipeline) minBytes() int64 {
	if p.cfg.MinBytes > 0 {
		return p.cfg.MinBytes
	}
	return DefaultMinBytes
}
