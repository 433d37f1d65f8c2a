package capture

import (
	"context"

	"github.com/reelcap/reelcap/internal/media"
)

// Source delivers encoded, timestamped samples from a running capture.
// Subscription channels are bounded; a source never blocks on a slow
// subscriber. When a source fails while running, it closes all
// subscriber channels so consumers can distinguish failure (check Err)
// from an ordinary unsubscribe.
type Source interface {
	// Start begins capturing. Returns an error if the source is
	// already running or cannot be brought up.
	Start(ctx context.Context) error

	// Stop shuts the capture down. Safe to call multiple times; a
	// stopped source may be started again.
	Stop() error

	// Err returns the failure that terminated the source, or nil
	// after a clean stop.
	Err() error

	SubscribeVideo(id string, bufferSize int) <-chan media.VideoSample
	UnsubscribeVideo(id string)
	SubscribeAudio(id string, bufferSize int) <-chan media.AudioSample
	UnsubscribeAudio(id string)

	// ParameterSets returns the most recently observed H.264 SPS/PPS,
	// or nils before the first keyframe.
	ParameterSets() (sps, pps []byte)

	// Dimensions returns the capture frame size in pixels.
	Dimensions() (width, height int)
}
