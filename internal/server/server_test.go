package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelcap/reelcap/internal/capture"
	"github.com/reelcap/reelcap/internal/library"
	"github.com/reelcap/reelcap/internal/util"
	"github.com/reelcap/reelcap/internal/zoom"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	controller, err := NewController(ControllerConfig{
		SourceFactory: func() (capture.Source, error) {
			return capture.NewSyntheticSource(capture.SyntheticConfig{
				FrameInterval: 5 * time.Millisecond,
				Audio:         true,
			}), nil
		},
		OutputDir: dir,
		Audio:     true,
		Tracker:   zoom.NewTracker(0.25, 1920, 1080, nil),
		Catalog:   library.NewCatalog(filepath.Join(dir, "catalog.toml"), 1024),
		LockPath:  filepath.Join(dir, "record.lock"),
	})
	require.NoError(t, err)

	return &Server{controller: controller, logger: util.GetLogger()}
}

func getStatus(t *testing.T, s *Server) StatusPayload {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var st StatusPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestStatusIdle(t *testing.T) {
	s := newTestServer(t)

	st := getStatus(t, s)
	assert.False(t, st.Recording)
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, 1.0, st.ZoomLevel)
}

func TestRecordStartStopRoundTrip(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleRecordStart(rec, httptest.NewRequest(http.MethodPost, "/api/record/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	st := getStatus(t, s)
	assert.True(t, st.Recording)

	// Let a keyframe open the container and enough samples land to
	// clear the minimum-size guard.
	require.Eventually(t, func() bool {
		return getStatus(t, s).State == "writing"
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)

	rec = httptest.NewRecorder()
	s.handleRecordStop(rec, httptest.NewRequest(http.MethodPost, "/api/record/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stopResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopResp))
	assert.Equal(t, "completed", stopResp["state"])
	assert.NotEmpty(t, stopResp["path"])
}

func TestRecordStartWhileRecordingConflicts(t *testing.T) {
	s := newTestServer(t)

	_, err := s.controller.StartRecording(context.Background())
	require.NoError(t, err)
	defer s.controller.StopRecording()

	rec := httptest.NewRecorder()
	s.handleRecordStart(rec, httptest.NewRequest(http.MethodPost, "/api/record/start", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRecordStopWithoutSessionConflicts(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleRecordStop(rec, httptest.NewRequest(http.MethodPost, "/api/record/stop", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStreamRequiresGet(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleStream(rec, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebMStreamWithoutRecordingConflicts(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleStream(rec, httptest.NewRequest(http.MethodGet, "/api/stream?container=webm", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTerminalFailurePublishesFailedEvent(t *testing.T) {
	dir := t.TempDir()
	controller, err := NewController(ControllerConfig{
		SourceFactory: func() (capture.Source, error) {
			// Crashes after a few frames on every restart, so the
			// pipeline exhausts its budget and fails terminally.
			return capture.NewSyntheticSource(capture.SyntheticConfig{
				FrameInterval: 2 * time.Millisecond,
				FailAfter:     5,
			}), nil
		},
		OutputDir: dir,
		Tracker:   zoom.NewTracker(0.25, 1920, 1080, nil),
		LockPath:  filepath.Join(dir, "record.lock"),
	})
	require.NoError(t, err)

	id, events := controller.Subscribe()
	defer controller.Unsubscribe(id)

	_, err = controller.StartRecording(context.Background())
	require.NoError(t, err)

	// A foreground client blocked on the event channel must learn the
	// terminal failure without ever calling StopRecording: by the time
	// the event fires there is no session left to stop.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == "failed" {
				assert.NotEmpty(t, ev.Reason)
				require.Eventually(t, func() bool {
					return controller.Status().State == "idle"
				}, 2*time.Second, 10*time.Millisecond)
				return
			}
		case <-deadline:
			t.Fatal("no failed event received")
		}
	}
}

func TestControllerEventsReachSubscribers(t *testing.T) {
	s := newTestServer(t)

	id, events := s.controller.Subscribe()
	defer s.controller.Unsubscribe(id)

	_, err := s.controller.StartRecording(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return s.controller.Status().State == "writing"
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	_, err = s.controller.StopRecording()
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == "completed" {
				assert.NotEmpty(t, ev.Path)
				return
			}
		case <-deadline:
			t.Fatal("no completed event received")
		}
	}
}
