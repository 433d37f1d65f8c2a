package zoom

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f64"
	testingclock "k8s.io/utils/clock/testing"
)

func TestTracker_SmoothingSteps(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	tracker := NewTracker(0.5, 1920, 1080, fc)
	tracker.SetCursor(1, 1)

	tracker.Enable()
	defer tracker.Disable()
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)

	// smoothed += (raw - smoothed) * factor, starting from the center
	expect := func(want float64) {
		require.Eventually(t, func() bool {
			s := tracker.Smoothed()
			return math.Abs(s[0]-want) < 1e-9 && math.Abs(s[1]-want) < 1e-9
		}, time.Second, time.Millisecond, "smoothed should reach %v", want)
	}

	fc.Step(DefaultSampleInterval)
	expect(0.75)
	fc.Step(DefaultSampleInterval)
	expect(0.875)
	fc.Step(DefaultSampleInterval)
	expect(0.9375)
}

func TestTracker_EnableDisableNoLeaks(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	tracker := NewTracker(0.5, 1920, 1080, fc)

	tracker.Enable()
	tracker.Enable() // idempotent
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)

	tracker.Disable()
	tracker.Disable()
	require.Eventually(t, func() bool { return !fc.HasWaiters() }, time.Second, time.Millisecond,
		"disable should release the ticker")

	// With the sampler stopped the cursor no longer eases
	tracker.SetCursor(1, 1)
	fc.Step(DefaultSampleInterval)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, f64.Vec2{0.5, 0.5}, tracker.Smoothed())

	// Re-enabling brings a fresh ticker
	tracker.Enable()
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(DefaultSampleInterval)
	require.Eventually(t, func() bool {
		return tracker.Smoothed()[0] > 0.5
	}, time.Second, time.Millisecond)
	tracker.Disable()
}

func TestTracker_UpdateCallback(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	tracker := NewTracker(0.25, 1920, 1080, fc)
	tracker.SetLevel(2)
	tracker.SetCursor(0.5, 0.5)

	updates := make(chan Transform, 16)
	tracker.OnUpdate(func(tr Transform) {
		select {
		case updates <- tr:
		default:
		}
	})

	tracker.Enable()
	defer tracker.Disable()
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)

	fc.Step(DefaultSampleInterval)
	select {
	case tr := <-updates:
		assert.Equal(t, 2.0, tr.Scale)
		assert.Zero(t, tr.TranslateX)
		assert.Zero(t, tr.TranslateY)
	case <-time.After(time.Second):
		t.Fatal("no transform update published")
	}
}

func TestTracker_LevelAndCursorClamping(t *testing.T) {
	tracker := NewTracker(0.25, 1920, 1080, nil)

	tracker.SetLevel(0.2)
	assert.Equal(t, 1.0, tracker.Level())

	tracker.SetLevel(3)
	assert.Equal(t, 3.0, tracker.Level())

	tracker.SetCursor(-1, 2)
	state := tracker.Snapshot()
	assert.Equal(t, 0.0, state.RawX)
	assert.Equal(t, 1.0, state.RawY)
	assert.False(t, state.Enabled)
}

func TestTracker_TransformFollowsSmoothedCursor(t *testing.T) {
	tracker := NewTracker(0.25, 1000, 500, nil)
	tracker.SetLevel(2)

	// Smoothed cursor starts centered, so the transform is pure scale
	transform := tracker.Transform()
	assert.Equal(t, 2.0, transform.Scale)
	assert.Zero(t, transform.TranslateX)
	assert.Zero(t, transform.TranslateY)
}
