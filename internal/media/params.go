package media

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// AccessUnitInfo summarizes the NAL units found in one Annex-B access
// unit.
type AccessUnitInfo struct {
	Keyframe bool
	SPS      []byte
	PPS      []byte
}

// InspectAccessUnit walks the NAL units of an Annex-B access unit,
// reporting whether it contains an IDR slice and returning any in-band
// parameter sets. The returned SPS/PPS are owned copies.
func InspectAccessUnit(data []byte) (AccessUnitInfo, error) {
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return AccessUnitInfo{}, fmt.Errorf("invalid access unit: %w", err)
	}

	var info AccessUnitInfo
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			info.SPS = CloneBytes(nalu)
		case h264.NALUTypePPS:
			info.PPS = CloneBytes(nalu)
		case h264.NALUTypeIDR:
			info.Keyframe = true
		}
	}
	return info, nil
}

// ContainsParameterSets reports whether an AVCC access unit already
// carries SPS and PPS NAL units.
func ContainsParameterSets(avcc []byte) bool {
	var sps, pps bool
	offset := 0
	for offset+4 <= len(avcc) {
		length := int(uint32(avcc[offset])<<24 | uint32(avcc[offset+1])<<16 | uint32(avcc[offset+2])<<8 | uint32(avcc[offset+3]))
		offset += 4
		if length <= 0 || offset+length > len(avcc) {
			break
		}
		switch h264.NALUType(avcc[offset] & 0x1F) {
		case h264.NALUTypeSPS:
			sps = true
		case h264.NALUTypePPS:
			pps = true
		}
		offset += length
	}
	return sps && pps
}

// BuildAVCCRecord builds an AVCDecoderConfigurationRecord (avcC) from
// raw SPS/PPS payloads. Matroska and MP4 players both consume this
// record as codec private data.
func BuildAVCCRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 {
		return nil, fmt.Errorf("SPS too short: %d bytes", len(sps))
	}
	if len(pps) == 0 {
		return nil, fmt.Errorf("empty PPS")
	}

	record := make([]byte, 0, 11+len(sps)+len(pps))
	record = append(record,
		0x01,   // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // lengthSizeMinusOne = 3 (4-byte lengths)
		0xE1,   // one SPS
	)
	record = append(record, byte(len(sps)>>8), byte(len(sps)))
	record = append(record, sps...)
	record = append(record, 0x01) // one PPS
	record = append(record, byte(len(pps)>>8), byte(len(pps)))
	record = append(record, pps...)
	return record, nil
}
