package export

import (
	"fmt"
	"io"
	"os"

	gomp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"
)

// SourceInfo describes the properties of a recording that exports
// depend on: coded geometry, embedded orientation, duration, and
// whether an audio track is present.
type SourceInfo struct {
	Width           int
	Height          int
	Rotation        int // clockwise degrees: 0, 90, 180 or 270
	DurationSeconds float64
	HasAudio        bool
}

// DisplayDimensions returns the source size after applying the
// embedded orientation, which is the geometry viewers actually see.
func (s *SourceInfo) DisplayDimensions() (int, int) {
	if s.Rotation == 90 || s.Rotation == 270 {
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

// Probe inspects an MP4 file and extracts the video geometry, duration
// and audio presence. Both flat and fragmented layouts are handled;
// fragmented recordings report a zero movie duration, so their length
// is reconstructed from the movie fragments instead.
func Probe(path string) (*SourceInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening source")
	}
	defer file.Close()

	probed, err := gomp4.Probe(file)
	if err != nil {
		return nil, errors.Wrap(err, "reading container")
	}

	info := &SourceInfo{}
	var video *gomp4.Track
	for _, track := range probed.Tracks {
		switch track.Codec {
		case gomp4.CodecAVC1:
			if video == nil {
				video = track
			}
		case gomp4.CodecMP4A:
			info.HasAudio = true
		}
	}
	if video == nil {
		return nil, fmt.Errorf("no video track found in %s", path)
	}
	if video.AVC != nil {
		info.Width = int(video.AVC.Width)
		info.Height = int(video.AVC.Height)
	}
	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("video track carries no dimensions in %s", path)
	}

	info.DurationSeconds = probeDuration(probed, video)
	info.Rotation = probeRotation(file, video.TrackID)
	return info, nil
}

func probeDuration(probed *gomp4.ProbeInfo, video *gomp4.Track) float64 {
	if video.Duration > 0 && video.Timescale > 0 {
		return float64(video.Duration) / float64(video.Timescale)
	}
	if probed.Duration > 0 && probed.Timescale > 0 {
		return float64(probed.Duration) / float64(probed.Timescale)
	}
	if video.Timescale == 0 {
		return 0
	}
	var endTicks uint64
	for _, seg := range probed.Segments {
		if seg.TrackID != video.TrackID {
			continue
		}
		if end := seg.BaseMediaDecodeTime + uint64(seg.Duration); end > endTicks {
			endTicks = end
		}
	}
	return float64(endTicks) / float64(video.Timescale)
}

// probeRotation reads the track header display matrix. Orientation
// metadata is optional, so any parse trouble degrades to no rotation.
func probeRotation(file *os.File, trackID uint32) int {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0
	}
	boxes, err := gomp4.ExtractBoxWithPayload(file, nil, gomp4.BoxPath{
		gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeTkhd(),
	})
	if err != nil {
		return 0
	}
	for _, box := range boxes {
		tkhd, ok := box.Payload.(*gomp4.Tkhd)
		if !ok || tkhd.TrackID != trackID {
			continue
		}
		return rotationFromMatrix(tkhd.Matrix)
	}
	return 0
}

// rotationFromMatrix decodes the 16.16 fixed-point display matrix into
// one of the four quarter-turn rotations. Anything that is not a pure
// quarter turn is treated as unrotated.
func rotationFromMatrix(m [9]int32) int {
	const one = int32(1 << 16)
	a, b, c, d := m[0], m[1], m[3], m[4]
	switch {
	case a == 0 && b == one && c == -one && d == 0:
		return 90
	case a == -one && b == 0 && c == 0 && d == -one:
		return 180
	case a == 0 && b == -one && c == one && d == 0:
		return 270
	default:
		return 0
	}
}
