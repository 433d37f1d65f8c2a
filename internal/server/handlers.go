package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reelcap/reelcap/internal/preview"
)

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Client went away mid-response; nothing to do.
		return
	}
}

func respondError(w http.ResponseWriter, statusCode int, err error) {
	respondJSON(w, statusCode, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// The capture process outlives the request, so its lifetime is
	// not bound to the request context.
	status, err := s.controller.StartRecording(context.Background())
	if err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := s.controller.StopRecording()
	if err != nil {
		respondError(w, http.StatusConflict, err)
		return
	}

	payload := map[string]string{"state": res.State.String()}
	if res.Path != "" {
		payload["path"] = res.Path
	}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	respondJSON(w, http.StatusOK, payload)
}

// handleStream serves the live preview. The default fMP4 stream is a
// byte-for-byte mirror of the recording; ?container=webm remuxes the
// capture stream per client instead.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Query().Get("container") {
	case "", "fmp4", "mp4":
		s.streamFMP4(w, r)
	case "webm":
		s.streamWebM(w, r)
	default:
		http.Error(w, "unknown container", http.StatusBadRequest)
	}
}

func (s *Server) streamFMP4(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := "http-" + uuid.NewString()
	ch := s.controller.Broadcaster().Subscribe(id, 64)
	defer s.controller.Broadcaster().Unsubscribe(id)

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("Preview stream client connected", "id", id)
	for {
		select {
		case <-r.Context().Done():
			return
		case chunk, open := <-ch:
			if !open {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) streamWebM(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	source := s.controller.Source()
	if source == nil {
		http.Error(w, "no live recording", http.StatusConflict)
		return
	}

	id := "webm-" + uuid.NewString()
	videoCh := source.SubscribeVideo(id, 64)
	audioCh := source.SubscribeAudio(id, 128)
	defer source.UnsubscribeVideo(id)
	defer source.UnsubscribeAudio(id)

	w.Header().Set("Content-Type", "video/webm")
	w.Header().Set("Cache-Control", "no-cache")

	width, height := source.Dimensions()
	muxer := preview.NewWebMMuxer(flushWriter{w: w, f: flusher}, width, height, s.controller.Audio())
	if err := muxer.WriteHeader(); err != nil {
		s.logger.Warn("WebM preview header", "error", err)
		return
	}
	defer muxer.Close()

	// Rebase on the first sample so the preview timeline starts at
	// zero regardless of how long the recording has been running.
	var origin int64 = -1
	rebase := func(pts int64) time.Duration {
		if origin < 0 {
			origin = pts
		}
		return time.Duration(pts-origin) * time.Microsecond
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case sample, open := <-videoCh:
			if !open {
				return
			}
			if err := muxer.WriteVideo(sample.Data, sample.IsKey, rebase(sample.PTS)); err != nil {
				return
			}
		case sample, open := <-audioCh:
			if !open {
				return
			}
			if err := muxer.WriteAudio(sample.Data, rebase(sample.PTS)); err != nil {
				return
			}
		}
	}
}

// flushWriter flushes after every write so preview chunks leave the
// server immediately.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}
