package recorder

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	gomp4 "github.com/abema/go-mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcap/reelcap/internal/capture"
)

// recordedEvents collects callback invocations for assertions.
type recordedEvents struct {
	mu        sync.Mutex
	states    []WriterState
	completed []string
	failed    []string
}

func (e *recordedEvents) callbacks() Callbacks {
	return Callbacks{
		OnState: func(s WriterState, _ float64) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.states = append(e.states, s)
		},
		OnCompleted: func(path string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.completed = append(e.completed, path)
		},
		OnFailed: func(reason string) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.failed = append(e.failed, reason)
		},
	}
}

func (e *recordedEvents) completedPaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.completed...)
}

func (e *recordedEvents) lastFailed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.failed) == 0 {
		return ""
	}
	return e.failed[len(e.failed)-1]
}

func TestPipeline_RecordsToCompletion(t *testing.T) {
	src := capture.NewSyntheticSource(capture.SyntheticConfig{
		FrameInterval: 5 * time.Millisecond,
		Audio:         true,
		Logger:        testLogger(),
	})
	events := &recordedEvents{}
	p, err := NewPipeline(PipelineConfig{
		Source:        src,
		OutputDir:     t.TempDir(),
		Audio:         true,
		MinBytes:      1,
		FlushInterval: 10 * time.Millisecond,
		DrainGrace:    20 * time.Millisecond,
		Callbacks:     events.callbacks(),
		Logger:        testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return p.State() == StateWriting
	}, 2*time.Second, 5*time.Millisecond, "first keyframe should open the container")
	require.Eventually(t, func() bool {
		c := p.Counters()
		return c.VideoAccepted >= 10 && c.AudioAccepted >= 10
	}, 2*time.Second, 5*time.Millisecond)

	res := p.Stop()
	require.Equal(t, StateCompleted, res.State)
	require.NoError(t, res.Err)
	assert.Greater(t, p.Elapsed(), 0.0)
	assert.False(t, p.Recording())

	select {
	case <-p.Done():
	default:
		t.Fatal("done channel should be closed after stop")
	}

	file, err := os.Open(res.Path)
	require.NoError(t, err)
	defer file.Close()
	info, err := gomp4.Probe(file)
	require.NoError(t, err)
	assert.Len(t, info.Tracks, 2, "recording should carry video and audio tracks")

	assert.Equal(t, []string{res.Path}, events.completedPaths())
	assert.Empty(t, events.lastFailed())
}

func TestPipeline_StopWithoutSamplesFails(t *testing.T) {
	src := capture.NewSyntheticSource(capture.SyntheticConfig{
		FrameInterval: time.Hour, // never emits in test time
		Logger:        testLogger(),
	})
	events := &recordedEvents{}
	p, err := NewPipeline(PipelineConfig{
		Source:    src,
		OutputDir: t.TempDir(),
		MinBytes:  1,
		Callbacks: events.callbacks(),
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	res := p.Stop()
	require.Equal(t, StateFailed, res.State)
	assert.ErrorContains(t, res.Err, "no samples")
	assert.Contains(t, events.lastFailed(), "no samples")

	_, statErr := os.Stat(p.OutputPath())
	assert.True(t, os.IsNotExist(statErr), "empty session should leave no file")
}

func TestPipeline_RecoversAndCompletes(t *testing.T) {
	src := capture.NewSyntheticSource(capture.SyntheticConfig{
		FrameInterval: 3 * time.Millisecond,
		FailAfter:     8,
		Logger:        testLogger(),
	})
	events := &recordedEvents{}
	p, err := NewPipeline(PipelineConfig{
		Source:        src,
		OutputDir:     t.TempDir(),
		MinBytes:      1,
		MaxRestarts:   3,
		FlushInterval: 10 * time.Millisecond,
		DrainGrace:    20 * time.Millisecond,
		Callbacks:     events.callbacks(),
		Logger:        testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	originalPath := p.OutputPath()

	require.Eventually(t, func() bool {
		return p.Restarts() >= 1
	}, 5*time.Second, 2*time.Millisecond, "capture crash should trigger a restart")
	src.SetFailAfter(0) // let the restarted capture run clean

	require.Eventually(t, func() bool {
		return p.State() == StateWriting && p.Counters().VideoAccepted >= 5
	}, 5*time.Second, 5*time.Millisecond, "restarted session should write again")

	assert.Equal(t, originalPath, p.OutputPath(), "restart must keep the same output path")

	res := p.Stop()
	require.Equal(t, StateCompleted, res.State)
	require.NoError(t, res.Err)

	file, err := os.Open(res.Path)
	require.NoError(t, err)
	defer file.Close()
	info, err := gomp4.Probe(file)
	require.NoError(t, err, "restarted recording must still be a valid container")
	assert.Len(t, info.Tracks, 1)
}

func TestPipeline_RestartBudgetExhausted(t *testing.T) {
	src := capture.NewSyntheticSource(capture.SyntheticConfig{
		FrameInterval: 2 * time.Millisecond,
		FailAfter:     5,
		Logger:        testLogger(),
	})
	events := &recordedEvents{}
	p, err := NewPipeline(PipelineConfig{
		Source:        src,
		OutputDir:     t.TempDir(),
		MinBytes:      10 << 20, // force the partial to be discarded
		MaxRestarts:   2,
		FlushInterval: 5 * time.Millisecond,
		DrainGrace:    10 * time.Millisecond,
		Callbacks:     events.callbacks(),
		Logger:        testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return events.lastFailed() != ""
	}, 10*time.Second, 5*time.Millisecond, "exhausted restarts should end the recording")

	assert.Contains(t, events.lastFailed(), "after 2 restarts")
	assert.False(t, p.Recording())

	res, ok := p.Result()
	require.True(t, ok)
	assert.Equal(t, StateFailed, res.State)

	select {
	case <-p.Done():
	default:
		t.Fatal("done channel should be closed after terminal failure")
	}

	_, statErr := os.Stat(p.OutputPath())
	assert.True(t, os.IsNotExist(statErr), "undersized partial should be discarded")
}

func TestPipeline_ConcurrentStops(t *testing.T) {
	src := capture.NewSyntheticSource(capture.SyntheticConfig{
		FrameInterval: 5 * time.Millisecond,
		Logger:        testLogger(),
	})
	dir := t.TempDir()
	p, err := NewPipeline(PipelineConfig{
		Source:        src,
		OutputDir:     dir,
		MinBytes:      1,
		FlushInterval: 10 * time.Millisecond,
		DrainGrace:    20 * time.Millisecond,
		Logger:        testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return p.Counters().VideoAccepted >= 5
	}, 2*time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	results := make([]Result, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.Stop()
		}()
	}
	wg.Wait()

	require.Equal(t, StateCompleted, results[0].State)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "exactly one recording file should exist")
}

func TestPipeline_StartTwiceFails(t *testing.T) {
	src := capture.NewSyntheticSource(capture.SyntheticConfig{
		FrameInterval: 5 * time.Millisecond,
		Logger:        testLogger(),
	})
	p, err := NewPipeline(PipelineConfig{
		Source:    src,
		OutputDir: t.TempDir(),
		MinBytes:  1,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	err = p.Start(context.Background())
	assert.ErrorContains(t, err, "already in progress")
}

func TestPipeline_RequiresSource(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{OutputDir: t.TempDir()})
	assert.Error(t, err)
}
