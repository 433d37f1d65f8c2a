package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSPS = []byte{
	0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
	0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
	0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
	0x20,
}

var testPPS = []byte{0x68, 0xce, 0x38, 0x80}

var testIDR = []byte{0x65, 0x88, 0x84, 0x00, 0x10}

var testPFrame = []byte{0x41, 0x9a, 0x24, 0x8c, 0x09}

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// annexB joins NAL units with 4-byte start codes.
func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, nalu := range nalus {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	return out
}

func TestAVCCConverter_Convert(t *testing.T) {
	converter := NewAVCCConverter()

	avcc, err := converter.Convert(annexB(testSPS, testPPS, testIDR))
	require.NoError(t, err)
	require.NotEmpty(t, avcc)

	// First NAL unit must be the SPS with a 4-byte length prefix
	require.GreaterOrEqual(t, len(avcc), 4+len(testSPS))
	length := int(avcc[0])<<24 | int(avcc[1])<<16 | int(avcc[2])<<8 | int(avcc[3])
	assert.Equal(t, len(testSPS), length)
	assert.Equal(t, testSPS, avcc[4:4+len(testSPS)])

	// Total size: three NAL units, each with a 4-byte prefix
	expected := 4 + len(testSPS) + 4 + len(testPPS) + 4 + len(testIDR)
	assert.Equal(t, expected, len(avcc))
	assert.True(t, IsAVCC(avcc))
	assert.False(t, IsAnnexB(avcc))
}

func TestAVCCConverter_ThreeByteStartCodes(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01}
	data = append(data, testPPS...)
	data = append(data, 0x00, 0x00, 0x01)
	data = append(data, testIDR...)

	avcc, err := AnnexBToAVCC(data)
	require.NoError(t, err)
	assert.Equal(t, 4+len(testPPS)+4+len(testIDR), len(avcc))
}

func TestAVCCConverter_EmptyInput(t *testing.T) {
	converter := NewAVCCConverter()
	avcc, err := converter.Convert(nil)
	require.NoError(t, err)
	assert.Nil(t, avcc)
}

func TestAVCCRoundTrip(t *testing.T) {
	original := annexB(testSPS, testPPS, testIDR)

	avcc, err := AnnexBToAVCC(original)
	require.NoError(t, err)

	back, err := AVCCToAnnexB(avcc)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestAVCCToAnnexB_InvalidLength(t *testing.T) {
	// Length prefix claims more bytes than available
	_, err := AVCCToAnnexB([]byte{0x00, 0x00, 0x10, 0x00, 0x65})
	require.Error(t, err)
}

func TestPrependParameterSets(t *testing.T) {
	avcc, err := AnnexBToAVCC(annexB(testIDR))
	require.NoError(t, err)

	withParams := PrependParameterSets(avcc, testSPS, testPPS)
	require.Greater(t, len(withParams), len(avcc))

	// SPS first, then PPS, then the original access unit
	length := int(withParams[0])<<24 | int(withParams[1])<<16 | int(withParams[2])<<8 | int(withParams[3])
	require.Equal(t, len(testSPS), length)
	assert.Equal(t, testSPS, withParams[4:4+len(testSPS)])
	assert.Equal(t, avcc, withParams[len(withParams)-len(avcc):])

	// Missing parameter sets leave the access unit untouched
	assert.Equal(t, avcc, PrependParameterSets(avcc, nil, testPPS))
}

func TestFormatDetection(t *testing.T) {
	assert.True(t, IsAnnexB(annexB(testIDR)))
	assert.True(t, IsAnnexB([]byte{0x00, 0x00, 0x01, 0x65}))
	assert.False(t, IsAnnexB([]byte{0x65, 0x88}))

	avcc, err := AnnexBToAVCC(annexB(testIDR))
	require.NoError(t, err)
	assert.True(t, IsAVCC(avcc))
	assert.False(t, IsAVCC([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x00}))
}
