package capture

import (
	"sync"

	"github.com/reelcap/reelcap/internal/media"
	"github.com/reelcap/reelcap/internal/util"
)

// Hub fans captured samples out to subscribers. Publishing never
// blocks: a subscriber whose channel is full misses that sample.
type Hub struct {
	mu  sync.RWMutex
	sps []byte
	pps []byte

	videoSubs map[string]chan media.VideoSample
	audioSubs map[string]chan media.AudioSample
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		videoSubs: make(map[string]chan media.VideoSample),
		audioSubs: make(map[string]chan media.AudioSample),
	}
}

// CacheParameterSets stores the latest H.264 SPS/PPS seen in the
// stream. The writer needs them to build the container header before
// the first keyframe payload is muxed.
func (h *Hub) CacheParameterSets(sps, pps []byte) {
	if len(sps) == 0 || len(pps) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sps = media.CloneBytes(sps)
	h.pps = media.CloneBytes(pps)
	util.GetLogger().Debug("Parameter sets cached", "sps_size", len(sps), "pps_size", len(pps))
}

// ParameterSets returns the cached SPS/PPS, or nils before the first
// keyframe has been observed.
func (h *Hub) ParameterSets() ([]byte, []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sps, h.pps
}

// SubscribeVideo adds a video subscriber with the given buffer size.
func (h *Hub) SubscribeVideo(id string, bufferSize int) <-chan media.VideoSample {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan media.VideoSample, bufferSize)
	h.videoSubs[id] = ch
	util.GetLogger().Debug("Video subscriber added", "id", id, "total", len(h.videoSubs))
	return ch
}

// UnsubscribeVideo removes a video subscriber and closes its channel.
func (h *Hub) UnsubscribeVideo(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, exists := h.videoSubs[id]; exists {
		close(ch)
		delete(h.videoSubs, id)
		util.GetLogger().Debug("Video subscriber removed", "id", id, "total", len(h.videoSubs))
	}
}

// PublishVideo delivers a video sample to all subscribers without
// blocking.
func (h *Hub) PublishVideo(sample media.VideoSample) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.videoSubs {
		select {
		case ch <- sample:
		default:
			util.GetLogger().Debug("Video channel full, dropping sample", "subscriber", id)
		}
	}
}

// SubscribeAudio adds an audio subscriber with the given buffer size.
func (h *Hub) SubscribeAudio(id string, bufferSize int) <-chan media.AudioSample {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan media.AudioSample, bufferSize)
	h.audioSubs[id] = ch
	util.GetLogger().Debug("Audio subscriber added", "id", id, "total", len(h.audioSubs))
	return ch
}

// UnsubscribeAudio removes an audio subscriber and closes its channel.
func (h *Hub) UnsubscribeAudio(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, exists := h.audioSubs[id]; exists {
		close(ch)
		delete(h.audioSubs, id)
		util.GetLogger().Debug("Audio subscriber removed", "id", id, "total", len(h.audioSubs))
	}
}

// PublishAudio delivers an audio sample to all subscribers without
// blocking.
func (h *Hub) PublishAudio(sample media.AudioSample) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.audioSubs {
		select {
		case ch <- sample:
		default:
			util.GetLogger().Debug("Audio channel full, dropping sample", "subscriber", id)
		}
	}
}

// CloseSubscribers closes every subscriber channel and clears the
// subscriber maps. Consumers blocked on a receive observe the closure
// and check the source for the failure. The hub stays usable: new
// subscriptions after CloseSubscribers work normally.
func (h *Hub) CloseSubscribers() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.videoSubs {
		close(ch)
		delete(h.videoSubs, id)
	}
	for id, ch := range h.audioSubs {
		close(ch)
		delete(h.audioSubs, id)
	}
	util.GetLogger().Debug("All hub subscribers closed")
}
