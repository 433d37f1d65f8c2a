package zoom

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/math/f64"
	"k8s.io/utils/clock"

	"github.com/reelcap/reelcap/internal/util"
)

// DefaultSampleInterval is the cadence of the cursor smoothing task.
const DefaultSampleInterval = 50 * time.Millisecond

// State is a point-in-time copy of the zoom state.
type State struct {
	Level     float64 `json:"level"`
	RawX      float64 `json:"raw_x"`
	RawY      float64 `json:"raw_y"`
	SmoothedX float64 `json:"smoothed_x"`
	SmoothedY float64 `json:"smoothed_y"`
	Enabled   bool    `json:"enabled"`
}

// Tracker holds the UI-mutated zoom state: level, raw cursor position,
// and the exponentially smoothed position the transform follows. A
// periodic sampler advances the smoothing on its own cadence so cursor
// easing is independent of both the UI event rate and the frame rate.
type Tracker struct {
	mu       sync.Mutex
	level    float64
	raw      f64.Vec2
	smoothed f64.Vec2
	factor   float64
	width    float64
	height   float64

	clk      clock.WithTicker
	interval time.Duration
	stopCh   chan struct{}
	running  bool
	onUpdate func(Transform)

	logger *slog.Logger
}

// NewTracker creates a tracker at level 1 with the cursor centered.
// The clock is injectable for tests; nil selects the real clock.
func NewTracker(factor float64, width, height int, clk clock.WithTicker) *Tracker {
	if factor <= 0 || factor > 1 {
		factor = 0.25
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	center := f64.Vec2{0.5, 0.5}
	return &Tracker{
		level:    1,
		raw:      center,
		smoothed: center,
		factor:   factor,
		width:    float64(width),
		height:   float64(height),
		clk:      clk,
		interval: DefaultSampleInterval,
		logger:   util.GetLogger(),
	}
}

// OnUpdate registers a callback invoked with the recomputed transform
// after every smoothing step.
func (t *Tracker) OnUpdate(fn func(Transform)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = fn
}

// SetLevel updates the zoom level. Values below 1 clamp to 1.
func (t *Tracker) SetLevel(level float64) {
	if level < 1 {
		level = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = level
	t.logger.Debug("Zoom level set", "level", level)
}

// SetCursor records a raw cursor position in normalized coordinates,
// clamped into [0,1].
func (t *Tracker) SetCursor(x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.raw[0] = clamp01(x)
	t.raw[1] = clamp01(y)
}

// Level returns the current zoom level.
func (t *Tracker) Level() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// Smoothed returns the smoothed cursor position.
func (t *Tracker) Smoothed() f64.Vec2 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.smoothed
}

// Snapshot returns a copy of the full zoom state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Level:     t.level,
		RawX:      t.raw[0],
		RawY:      t.raw[1],
		SmoothedX: t.smoothed[0],
		SmoothedY: t.smoothed[1],
		Enabled:   t.running,
	}
}

// Transform returns the transform for the current state.
func (t *Tracker) Transform() Transform {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Compute(t.level, t.smoothed, t.width, t.height)
}

// Enable starts the periodic smoothing task. Idempotent.
func (t *Tracker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.stopCh = make(chan struct{})
	go t.sample(t.stopCh)
	t.logger.Debug("Cursor tracking enabled", "interval", t.interval)
}

// Disable cancels the smoothing task. Idempotent; the ticker is always
// released.
func (t *Tracker) Disable() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stopCh := t.stopCh
	t.mu.Unlock()

	close(stopCh)
	t.logger.Debug("Cursor tracking disabled")
}

func (t *Tracker) sample(stopCh chan struct{}) {
	ticker := t.clk.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C():
			t.step()
		}
	}
}

// step advances the smoothed position toward the raw position and
// publishes the resulting transform.
func (t *Tracker) step() {
	t.mu.Lock()
	t.smoothed[0] += (t.raw[0] - t.smoothed[0]) * t.factor
	t.smoothed[1] += (t.raw[1] - t.smoothed[1]) * t.factor
	transform := Compute(t.level, t.smoothed, t.width, t.height)
	fn := t.onUpdate
	t.mu.Unlock()

	if fn != nil {
		fn(transform)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
