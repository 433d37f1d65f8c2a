package media

// Kind identifies the track a sample belongs to.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

// String returns a human-readable track name.
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// VideoSample is a single H.264 access unit in Annex-B format.
type VideoSample struct {
	Data  []byte // Annex-B NAL unit data
	IsKey bool   // Whether the access unit contains an IDR slice
	PTS   int64  // Presentation timestamp in microseconds
}

// AudioSample is a single raw AAC access unit (no ADTS header).
type AudioSample struct {
	Data []byte // Raw AAC payload
	PTS  int64  // Presentation timestamp in microseconds
}

// CloneBytes returns an owned copy of b. Demuxers reuse their read
// buffers, so payloads must be copied before they cross a channel.
func CloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
