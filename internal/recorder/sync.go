package recorder

import (
	"log/slog"
	"sync"

	"github.com/reelcap/reelcap/internal/media"
	"github.com/reelcap/reelcap/internal/util"
)

// Synchronizer rebases raw capture timestamps onto a per-session
// origin. The first sample of either track fixes the origin; every
// later timestamp is reported relative to it. Samples that land
// before the origin, or behind the last accepted sample of the same
// track, are rejected so the container only ever sees monotonic
// timelines. Rejected samples are counted, never reordered.
type Synchronizer struct {
	logger *slog.Logger

	mu        sync.Mutex
	originSet bool
	origin    int64
	hasVideo  bool
	lastVideo int64
	hasAudio  bool
	lastAudio int64
	rejected  uint64
}

func NewSynchronizer(logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &Synchronizer{logger: logger}
}

// Accept normalizes pts (microseconds) against the session origin and
// reports whether the sample may be written. The first call fixes the
// origin and always succeeds with a normalized timestamp of zero.
func (s *Synchronizer) Accept(kind media.Kind, pts int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.originSet {
		s.origin = pts
		s.originSet = true
		s.logger.Debug("Session timestamp origin fixed", "kind", kind.String(), "originUs", pts)
	}

	normalized := pts - s.origin
	if normalized < 0 {
		s.rejected++
		s.logger.Debug("Rejecting sample before session origin", "kind", kind.String(), "ptsUs", pts, "originUs", s.origin)
		return 0, false
	}

	switch kind {
	case media.KindVideo:
		if s.hasVideo && normalized < s.lastVideo {
			s.rejected++
			s.logger.Debug("Rejecting backward video timestamp", "ptsUs", normalized, "lastUs", s.lastVideo)
			return 0, false
		}
		s.lastVideo = normalized
		s.hasVideo = true
	case media.KindAudio:
		if s.hasAudio && normalized < s.lastAudio {
			s.rejected++
			s.logger.Debug("Rejecting backward audio timestamp", "ptsUs", normalized, "lastUs", s.lastAudio)
			return 0, false
		}
		s.lastAudio = normalized
		s.hasAudio = true
	}

	return normalized, true
}

// Origin returns the raw timestamp the session is rebased on, if one
// has been fixed yet.
func (s *Synchronizer) Origin() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin, s.originSet
}

// Rejected returns how many samples were refused for arriving out of
// order.
func (s *Synchronizer) Rejected() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}
