package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/reelcap/reelcap/internal/capture"
	"github.com/reelcap/reelcap/internal/export"
	"github.com/reelcap/reelcap/internal/library"
	"github.com/reelcap/reelcap/internal/preview"
	"github.com/reelcap/reelcap/internal/recorder"
	"github.com/reelcap/reelcap/internal/util"
	"github.com/reelcap/reelcap/internal/zoom"
)

// SourceFactory builds a fresh capture source for each recording
// session.
type SourceFactory func() (capture.Source, error)

// Event is pushed to controller subscribers (WebSocket clients).
type Event struct {
	Type           string          `json:"type"` // status | transform | completed | failed
	State          string          `json:"state,omitempty"`
	ElapsedSeconds float64         `json:"elapsed_seconds,omitempty"`
	Transform      *zoom.Transform `json:"transform,omitempty"`
	Path           string          `json:"path,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// StatusPayload is the JSON body of /api/status.
type StatusPayload struct {
	Recording      bool    `json:"recording"`
	State          string  `json:"state"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	OutputPath     string  `json:"output_path,omitempty"`
	Restarts       int     `json:"restarts"`
	PreviewClients int     `json:"preview_clients"`
	ZoomLevel      float64 `json:"zoom_level"`
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	SourceFactory SourceFactory
	OutputDir     string
	// Name overrides the timestamped output file stem.
	Name     string
	Audio    bool
	Tracker  *zoom.Tracker
	Catalog  *library.Catalog
	LockPath string
	Logger   *slog.Logger
}

// Controller owns the recording lifecycle on behalf of HTTP and
// WebSocket clients: it holds the single live pipeline, the shared
// zoom tracker, and the preview broadcaster, and fans status and
// transform events out to subscribers. Clients only observe recording
// state; the pipeline alone mutates it.
type Controller struct {
	cfg         ControllerConfig
	logger      *slog.Logger
	broadcaster *preview.Broadcaster
	recordLock  *flock.Flock

	mu          sync.Mutex
	source      capture.Source
	pipeline    *recorder.Pipeline
	sessionDone chan struct{}

	subMu  sync.Mutex
	subs   map[string]chan Event
	nextID int
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.SourceFactory == nil {
		return nil, fmt.Errorf("source factory is required")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("zoom tracker is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = util.GetLogger()
	}

	c := &Controller{
		cfg:         cfg,
		logger:      cfg.Logger,
		broadcaster: preview.NewBroadcaster(),
		subs:        make(map[string]chan Event),
	}
	if cfg.LockPath != "" {
		c.recordLock = flock.New(cfg.LockPath)
	}

	cfg.Tracker.OnUpdate(func(t zoom.Transform) {
		c.publish(Event{Type: "transform", Transform: &t})
	})
	return c, nil
}

// Broadcaster returns the fMP4 preview fan-out.
func (c *Controller) Broadcaster() *preview.Broadcaster {
	return c.broadcaster
}

// Tracker returns the shared zoom tracker.
func (c *Controller) Tracker() *zoom.Tracker {
	return c.cfg.Tracker
}

// Audio reports whether sessions capture an audio track.
func (c *Controller) Audio() bool {
	return c.cfg.Audio
}

// Source returns the live capture source, or nil when idle. The WebM
// preview handler subscribes to it directly.
func (c *Controller) Source() capture.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source
}

// Subscribe registers an event listener with a bounded buffer.
func (c *Controller) Subscribe() (string, <-chan Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.nextID++
	id := fmt.Sprintf("sub-%d", c.nextID)
	ch := make(chan Event, 32)
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Controller) Unsubscribe(id string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if ch, ok := c.subs[id]; ok {
		close(ch)
		delete(c.subs, id)
	}
}

// publish offers an event to every subscriber without blocking.
// Transform events at 20 Hz must never back up into the tracker.
func (c *Controller) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// StartRecording begins a new session. It fails when one is already
// live, or when another reelcap process holds the record lock.
func (c *Controller) StartRecording(ctx context.Context) (StatusPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pipeline != nil && c.pipeline.Recording() {
		return c.statusLocked(), fmt.Errorf("a recording is already in progress")
	}

	if c.recordLock != nil {
		ok, err := c.recordLock.TryLock()
		if err != nil {
			return c.statusLocked(), fmt.Errorf("acquiring record lock: %w", err)
		}
		if !ok {
			return c.statusLocked(), fmt.Errorf("another reelcap process is recording")
		}
	}

	source, err := c.cfg.SourceFactory()
	if err != nil {
		c.releaseLock()
		return c.statusLocked(), err
	}

	pipeline, err := recorder.NewPipeline(recorder.PipelineConfig{
		Source:    source,
		OutputDir: c.cfg.OutputDir,
		Name:      c.cfg.Name,
		Audio:     c.cfg.Audio,
		Mirror:    c.broadcaster,
		Callbacks: recorder.Callbacks{
			OnState: func(state recorder.WriterState, elapsed float64) {
				c.publish(Event{Type: "status", State: state.String(), ElapsedSeconds: elapsed})
			},
			OnCompleted: func(path string) {
				c.publish(Event{Type: "completed", Path: path})
			},
			OnFailed: func(reason string) {
				c.publish(Event{Type: "failed", Reason: reason})
			},
		},
		Logger: c.logger,
	})
	if err != nil {
		c.releaseLock()
		return c.statusLocked(), err
	}

	if err := pipeline.Start(ctx); err != nil {
		c.releaseLock()
		return c.statusLocked(), err
	}

	c.source = source
	c.pipeline = pipeline
	c.sessionDone = make(chan struct{})
	c.cfg.Tracker.Enable()

	go c.watch(pipeline, c.sessionDone)
	return c.statusLocked(), nil
}

// watch waits for the pipeline's terminal result, catalogs a
// successful recording, and releases session resources.
func (c *Controller) watch(pipeline *recorder.Pipeline, sessionDone chan struct{}) {
	defer close(sessionDone)
	<-pipeline.Done()
	res, _ := pipeline.Result()

	if res.State == recorder.StateCompleted && c.cfg.Catalog != nil {
		c.catalogRecording(res.Path, pipeline.Elapsed())
	}

	c.mu.Lock()
	if c.pipeline == pipeline {
		c.source = nil
		c.pipeline = nil
		c.cfg.Tracker.Disable()
		c.releaseLock()
	}
	c.mu.Unlock()
}

// catalogRecording records a finished file in the library, probing it
// for the metadata the listing shows.
func (c *Controller) catalogRecording(path string, elapsed float64) {
	entry := library.Entry{
		ID:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:     library.KindRecording,
		Path:     path,
		Created:  time.Now(),
		Duration: elapsed,
	}
	if st, err := os.Stat(path); err == nil {
		entry.Bytes = st.Size()
	}
	if info, err := export.Probe(path); err == nil {
		entry.Width, entry.Height = info.DisplayDimensions()
		if info.DurationSeconds > 0 {
			entry.Duration = info.DurationSeconds
		}
	}
	if err := c.cfg.Catalog.Add(entry); err != nil {
		c.logger.Warn("Failed to catalog recording", "path", path, "error", err)
	}
}

// StopRecording finalizes the live session and returns its terminal
// result. Stopping with no live session is an error.
func (c *Controller) StopRecording() (recorder.Result, error) {
	c.mu.Lock()
	pipeline := c.pipeline
	sessionDone := c.sessionDone
	c.mu.Unlock()

	if pipeline == nil {
		return recorder.Result{}, fmt.Errorf("no active recording to stop")
	}
	res := pipeline.Stop()

	// Wait for the watcher to catalog the file and release the
	// session so a CLI caller can exit immediately after Stop.
	if sessionDone != nil {
		select {
		case <-sessionDone:
		case <-time.After(5 * time.Second):
			c.logger.Warn("Session cleanup timed out")
		}
	}
	return res, nil
}

// Status reports the controller's current state.
func (c *Controller) Status() StatusPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() StatusPayload {
	st := StatusPayload{
		State:          recorder.StateIdle.String(),
		PreviewClients: c.broadcaster.SubscriberCount(),
		ZoomLevel:      c.cfg.Tracker.Level(),
	}
	if c.pipeline != nil {
		st.Recording = c.pipeline.Recording()
		st.State = c.pipeline.State().String()
		st.ElapsedSeconds = c.pipeline.Elapsed()
		st.OutputPath = c.pipeline.OutputPath()
		st.Restarts = c.pipeline.Restarts()
	}
	return st
}

// Shutdown stops any live recording and closes the preview fan-out.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	pipeline := c.pipeline
	c.mu.Unlock()

	if pipeline != nil && pipeline.Recording() {
		pipeline.Stop()
	}
	c.broadcaster.Close()

	c.subMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subMu.Unlock()
}

// releaseLock drops the record lock if held. Callers hold c.mu or are
// on the watch path after the pipeline cleared.
func (c *Controller) releaseLock() {
	if c.recordLock != nil {
		if err := c.recordLock.Unlock(); err != nil {
			c.logger.Debug("Releasing record lock", "error", err)
		}
	}
}
