package capture

import (
	"context"
	"io"
	"log/slog"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pkg/errors"

	"github.com/reelcap/reelcap/internal/media"
)

// tsDemuxer converts an MPEG-TS byte stream into timestamped samples
// and publishes them into a Hub. PES presentation timestamps (90 kHz)
// are converted to microseconds; H.264 access units are keyframe
// classified and in-band parameter sets cached; ADTS audio is split
// into raw AAC access units.
type tsDemuxer struct {
	hub    *Hub
	logger *slog.Logger

	videoPID uint16
	audioPID uint16
}

func newTSDemuxer(hub *Hub, logger *slog.Logger) *tsDemuxer {
	return &tsDemuxer{
		hub:    hub,
		logger: logger,
	}
}

// ptsToMicroseconds converts a 90 kHz PES timestamp to microseconds.
func ptsToMicroseconds(base int64) int64 {
	return base * 1_000_000 / 90_000
}

// run consumes the transport stream until EOF, cancellation, or a
// fatal demux error. A clean EOF returns nil.
func (d *tsDemuxer) run(ctx context.Context, r io.Reader) error {
	dmx := astits.NewDemuxer(ctx, r)

	for {
		data, err := dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "demuxing transport stream")
		}

		if data.PMT != nil {
			d.handlePMT(data.PMT)
			continue
		}
		if data.PES != nil {
			d.handlePES(data.PID, data.PES)
		}
	}
}

func (d *tsDemuxer) handlePMT(pmt *astits.PMTData) {
	for _, es := range pmt.ElementaryStreams {
		switch es.StreamType {
		case astits.StreamTypeH264Video:
			d.videoPID = es.ElementaryPID
		case astits.StreamTypeAACAudio:
			d.audioPID = es.ElementaryPID
		}
	}
	d.logger.Debug("Capture streams mapped", "video_pid", d.videoPID, "audio_pid", d.audioPID)
}

func (d *tsDemuxer) handlePES(pid uint16, pes *astits.PESData) {
	if pes.Header == nil || pes.Header.OptionalHeader == nil || pes.Header.OptionalHeader.PTS == nil {
		return
	}
	pts := ptsToMicroseconds(pes.Header.OptionalHeader.PTS.Base)

	switch pid {
	case d.videoPID:
		d.handleVideo(pes.Data, pts)
	case d.audioPID:
		d.handleAudio(pes.Data, pts)
	}
}

func (d *tsDemuxer) handleVideo(data []byte, pts int64) {
	if len(data) == 0 {
		return
	}

	info, err := media.InspectAccessUnit(data)
	if err != nil {
		d.logger.Debug("Skipping unparsable access unit", "error", err, "size", len(data))
		return
	}

	if len(info.SPS) > 0 && len(info.PPS) > 0 {
		d.hub.CacheParameterSets(info.SPS, info.PPS)
	}

	d.hub.PublishVideo(media.VideoSample{
		Data:  media.CloneBytes(data),
		IsKey: info.Keyframe,
		PTS:   pts,
	})
}

func (d *tsDemuxer) handleAudio(data []byte, pts int64) {
	if len(data) == 0 {
		return
	}

	var packets mpeg4audio.ADTSPackets
	if err := packets.Unmarshal(data); err != nil {
		d.logger.Debug("Skipping unparsable ADTS payload", "error", err, "size", len(data))
		return
	}

	for i, packet := range packets {
		if len(packet.AU) == 0 || packet.SampleRate <= 0 {
			continue
		}
		// Each AAC access unit covers 1024 PCM samples; PES timing
		// only marks the first packet of the payload.
		offset := int64(i) * 1024 * 1_000_000 / int64(packet.SampleRate)
		d.hub.PublishAudio(media.AudioSample{
			Data: media.CloneBytes(packet.AU),
			PTS:  pts + offset,
		})
	}
}
