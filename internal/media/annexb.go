package media

import "fmt"

// AVCCConverter converts H.264 access units from Annex-B format
// (start-code delimited) to AVCC format (4-byte big-endian length
// prefixes) as required inside MP4 samples. The converter reuses an
// internal buffer, so the returned slice is only valid until the next
// Convert call.
type AVCCConverter struct {
	buffer []byte
}

// NewAVCCConverter creates a converter with a preallocated buffer.
func NewAVCCConverter() *AVCCConverter {
	return &AVCCConverter{
		buffer: make([]byte, 0, 1024*1024),
	}
}

// Convert converts an Annex-B access unit to AVCC format.
func (c *AVCCConverter) Convert(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	c.buffer = c.buffer[:0]

	offset := 0
	for offset < len(data) {
		startCodePos := findStartCode(data[offset:])
		if startCodePos == -1 {
			// No more start codes, the rest is the last NAL unit
			if offset < len(data) {
				c.appendNAL(data[offset:])
			}
			break
		}

		actualPos := offset + startCodePos

		// Data before this start code belongs to the previous NAL unit
		if actualPos > offset {
			c.appendNAL(data[offset:actualPos])
		}

		startCodeLen := startCodeLength(data[actualPos:])
		offset = actualPos + startCodeLen
	}

	return c.buffer, nil
}

func (c *AVCCConverter) appendNAL(nal []byte) {
	if len(nal) == 0 {
		return
	}
	length := uint32(len(nal))
	c.buffer = append(c.buffer,
		byte(length>>24),
		byte(length>>16),
		byte(length>>8),
		byte(length),
	)
	c.buffer = append(c.buffer, nal...)
}

// findStartCode returns the position of the next start code in data,
// or -1 when none is found.
func findStartCode(data []byte) int {
	for i := 0; i < len(data)-3; i++ {
		if data[i] == 0x00 && data[i+1] == 0x00 && data[i+2] == 0x00 && data[i+3] == 0x01 {
			return i
		}
		if i < len(data)-2 && data[i] == 0x00 && data[i+1] == 0x00 && data[i+2] == 0x01 {
			// Not the tail of a 4-byte start code
			if i == 0 || data[i-1] != 0x00 {
				return i
			}
		}
	}
	return -1
}

// startCodeLength returns the length of the start code at the head of
// data (4, 3, or 0 when data does not begin with a start code).
func startCodeLength(data []byte) int {
	if len(data) >= 4 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x00 && data[3] == 0x01 {
		return 4
	}
	if len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01 {
		return 3
	}
	return 0
}

// IsAnnexB reports whether data begins with an Annex-B start code.
func IsAnnexB(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x00 && data[3] == 0x01 {
		return true
	}
	if data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01 {
		return true
	}
	return false
}

// IsAVCC reports whether data plausibly starts with an AVCC length
// prefix rather than a start code.
func IsAVCC(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if IsAnnexB(data) {
		return false
	}
	length := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	return length <= uint32(len(data))
}

// AnnexBToAVCC is a one-shot conversion helper.
func AnnexBToAVCC(data []byte) ([]byte, error) {
	converter := NewAVCCConverter()
	return converter.Convert(data)
}

// PrependParameterSets prepends SPS/PPS NAL units (raw payloads,
// without start codes) to an AVCC access unit. Players joining at a
// keyframe need the parameter sets in-band to start decoding.
func PrependParameterSets(avcc []byte, sps []byte, pps []byte) []byte {
	if len(avcc) == 0 || len(sps) == 0 || len(pps) == 0 {
		return avcc
	}
	spsLen := uint32(len(sps))
	ppsLen := uint32(len(pps))
	out := make([]byte, 0, 4+len(sps)+4+len(pps)+len(avcc))
	out = append(out, byte(spsLen>>24), byte(spsLen>>16), byte(spsLen>>8), byte(spsLen))
	out = append(out, sps...)
	out = append(out, byte(ppsLen>>24), byte(ppsLen>>16), byte(ppsLen>>8), byte(ppsLen))
	out = append(out, pps...)
	out = append(out, avcc...)
	return out
}

// AVCCToAnnexB converts an AVCC access unit back to Annex-B format.
func AVCCToAnnexB(data []byte) ([]byte, error) {
	var result []byte
	offset := 0

	for offset < len(data) {
		if offset+4 > len(data) {
			break
		}

		length := uint32(data[offset])<<24 | uint32(data[offset+1])<<16 | uint32(data[offset+2])<<8 | uint32(data[offset+3])
		offset += 4

		if offset+int(length) > len(data) {
			return nil, fmt.Errorf("invalid length prefix: %d", length)
		}

		result = append(result, 0x00, 0x00, 0x00, 0x01)
		result = append(result, data[offset:offset+int(length)]...)

		offset += int(length)
	}

	return result, nil
}
