package recorder

import (
	"fmt"
	"log/slog"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/pkg/errors"

	"github.com/reelcap/reelcap/internal/media"
	"github.com/reelcap/reelcap/internal/util"
)

const (
	videoTrackID   = 1
	audioTrackID   = 2
	videoTimescale = 90000
	audioTimescale = 44100

	// Fallback durations for the last sample of a batch, where no
	// successor timestamp exists yet: one frame at 30 fps and one
	// AAC access unit.
	defaultVideoSampleTicks = videoTimescale / 30
	defaultAudioSampleTicks = 1024

	audioChannelCount = 2
)

// scaleTimestampToTimescale converts a microsecond timestamp into
// ticks of the given track timescale.
func scaleTimestampToTimescale(timestampUs int64, timeScale uint32) int64 {
	return (timestampUs * int64(timeScale)) / 1_000_000
}

// fragmentWriter marshals normalized samples into fragmented MP4
// boxes. It is a pure encoder: marshalInit produces the init segment
// (ftyp+moov), marshalBatch produces one moof+mdat part per call.
// The caller owns delivery of the returned bytes.
type fragmentWriter struct {
	logger *slog.Logger

	sps   []byte
	pps   []byte
	audio bool

	sequenceNumber uint32
	videoSamples   uint64
	audioSamples   uint64
}

func newFragmentWriter(logger *slog.Logger) *fragmentWriter {
	if logger == nil {
		logger = util.GetLogger()
	}
	return &fragmentWriter{logger: logger}
}

// marshalInit builds the init segment for an H.264 track plus an
// optional AAC track and remembers the parameter sets for keyframe
// repair in later batches.
func (f *fragmentWriter) marshalInit(sps, pps []byte, audio bool) ([]byte, error) {
	if len(sps) == 0 || len(pps) == 0 {
		return nil, fmt.Errorf("missing H.264 parameter sets")
	}
	f.sps = media.CloneBytes(sps)
	f.pps = media.CloneBytes(pps)
	f.audio = audio

	init := fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{
				ID:        videoTrackID,
				TimeScale: videoTimescale,
				Codec: &mp4.CodecH264{
					SPS: f.sps,
					PPS: f.pps,
				},
			},
		},
	}
	if audio {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        audioTrackID,
			TimeScale: audioTimescale,
			Codec: &mp4.CodecMPEG4Audio{
				Config: mpeg4audio.AudioSpecificConfig{
					Type:         2, // AAC-LC
					SampleRate:   audioTimescale,
					ChannelCount: audioChannelCount,
				},
			},
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return nil, errors.Wrap(err, "marshaling init segment")
	}

	f.logger.Debug("Init segment built", "size", buf.Len(), "audio", audio)
	return buf.Bytes(), nil
}

// marshalBatch encodes one part from the given samples. Timestamps
// must already be normalized and non-decreasing per track; each
// track's base time is taken from its first sample so parts remain
// correctly placed even when samples were dropped in between.
func (f *fragmentWriter) marshalBatch(video []media.VideoSample, audio []media.AudioSample) ([]byte, error) {
	if len(video) == 0 && len(audio) == 0 {
		return nil, nil
	}

	part := fmp4.Part{SequenceNumber: f.sequenceNumber}

	if len(video) > 0 {
		track, err := f.buildVideoTrack(video)
		if err != nil {
			return nil, err
		}
		part.Tracks = append(part.Tracks, track)
	}
	if f.audio && len(audio) > 0 {
		part.Tracks = append(part.Tracks, f.buildAudioTrack(audio))
	}
	if len(part.Tracks) == 0 {
		return nil, nil
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return nil, errors.Wrap(err, "marshaling media part")
	}

	f.sequenceNumber++
	f.videoSamples += uint64(len(video))
	if f.audio {
		f.audioSamples += uint64(len(audio))
	}
	return buf.Bytes(), nil
}

func (f *fragmentWriter) buildVideoTrack(video []media.VideoSample) (*fmp4.PartTrack, error) {
	track := &fmp4.PartTrack{
		ID:       videoTrackID,
		BaseTime: uint64(scaleTimestampToTimescale(video[0].PTS, videoTimescale)),
	}

	for i, s := range video {
		avcc, err := media.AnnexBToAVCC(s.Data)
		if err != nil {
			return nil, errors.Wrap(err, "converting access unit")
		}
		if s.IsKey && !media.ContainsParameterSets(avcc) {
			avcc = media.PrependParameterSets(avcc, f.sps, f.pps)
		}

		duration := uint32(defaultVideoSampleTicks)
		if i+1 < len(video) {
			delta := scaleTimestampToTimescale(video[i+1].PTS, videoTimescale) -
				scaleTimestampToTimescale(s.PTS, videoTimescale)
			if delta > 0 {
				duration = uint32(delta)
			}
		}

		track.Samples = append(track.Samples, &fmp4.Sample{
			Duration:        duration,
			IsNonSyncSample: !s.IsKey,
			Payload:         avcc,
		})
	}
	return track, nil
}

func (f *fragmentWriter) buildAudioTrack(audio []media.AudioSample) *fmp4.PartTrack {
	track := &fmp4.PartTrack{
		ID:       audioTrackID,
		BaseTime: uint64(scaleTimestampToTimescale(audio[0].PTS, audioTimescale)),
	}

	for i, s := range audio {
		duration := uint32(defaultAudioSampleTicks)
		if i+1 < len(audio) {
			delta := scaleTimestampToTimescale(audio[i+1].PTS, audioTimescale) -
				scaleTimestampToTimescale(s.PTS, audioTimescale)
			if delta > 0 {
				duration = uint32(delta)
			}
		}

		track.Samples = append(track.Samples, &fmp4.Sample{
			Duration: duration,
			Payload:  stripADTSHeader(s.Data),
		})
	}
	return track
}

// stripADTSHeader removes a leading ADTS header when one is present,
// leaving the raw AAC access unit. Payloads without the syncword pass
// through untouched.
func stripADTSHeader(data []byte) []byte {
	if len(data) < 7 || data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return data
	}
	headerLen := 7
	if data[1]&0x01 == 0 { // CRC present
		headerLen = 9
	}
	if len(data) <= headerLen {
		return data
	}
	return data[headerLen:]
}

func (f *fragmentWriter) stats() (videoSamples, audioSamples uint64) {
	return f.videoSamples, f.audioSamples
}
