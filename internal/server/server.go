package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reelcap/reelcap/internal/util"
)

// Server exposes the recording control surface and the live preview
// over localhost HTTP and WebSocket.
type Server struct {
	port       int
	controller *Controller
	httpServer *http.Server
	logger     *slog.Logger
	running    bool
}

// NewServer creates a server for an already-constructed controller.
func NewServer(port int, controller *Controller) *Server {
	return &Server{
		port:       port,
		controller: controller,
		logger:     util.GetLogger(),
	}
}

// Start binds the listener and serves until Stop. It returns once the
// listener is up; serving continues on its own goroutine.
func (s *Server) Start() error {
	if s.running {
		return fmt.Errorf("server already running")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/record/start", s.handleRecordStart)
	mux.HandleFunc("/api/record/stop", s.handleRecordStop)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleIndex)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// No write timeout: /api/stream stays open for the whole
		// recording.
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	s.running = true
	s.logger.Info("Server started", "addr", fmt.Sprintf("http://127.0.0.1:%d", s.port))
	return nil
}

// Stop shuts the server down, finalizing any live recording first.
func (s *Server) Stop() error {
	if !s.running {
		return nil
	}
	s.logger.Info("Stopping server")

	s.controller.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Server shutdown", "error", err)
	}

	s.running = false
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	return s.running
}
