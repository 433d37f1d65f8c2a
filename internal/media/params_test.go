package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectAccessUnit_Keyframe(t *testing.T) {
	info, err := InspectAccessUnit(annexB(testSPS, testPPS, testIDR))
	require.NoError(t, err)

	assert.True(t, info.Keyframe)
	assert.Equal(t, testSPS, info.SPS)
	assert.Equal(t, testPPS, info.PPS)
}

func TestInspectAccessUnit_PFrame(t *testing.T) {
	info, err := InspectAccessUnit(annexB(testPFrame))
	require.NoError(t, err)

	assert.False(t, info.Keyframe)
	assert.Nil(t, info.SPS)
	assert.Nil(t, info.PPS)
}

func TestInspectAccessUnit_Invalid(t *testing.T) {
	_, err := InspectAccessUnit([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	require.Error(t, err)
}

func TestInspectAccessUnit_CopiesParameterSets(t *testing.T) {
	buf := annexB(testSPS, testPPS, testIDR)
	info, err := InspectAccessUnit(buf)
	require.NoError(t, err)

	// Mutating the source buffer must not corrupt the extracted sets
	for i := range buf {
		buf[i] = 0xAA
	}
	assert.Equal(t, testSPS, info.SPS)
	assert.Equal(t, testPPS, info.PPS)
}

func TestContainsParameterSets(t *testing.T) {
	withParams, err := AnnexBToAVCC(annexB(testSPS, testPPS, testIDR))
	require.NoError(t, err)
	assert.True(t, ContainsParameterSets(withParams))

	without, err := AnnexBToAVCC(annexB(testPFrame))
	require.NoError(t, err)
	assert.False(t, ContainsParameterSets(without))
}

func TestBuildAVCCRecord(t *testing.T) {
	record, err := BuildAVCCRecord(testSPS, testPPS)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(record), 11)
	assert.Equal(t, byte(0x01), record[0])
	assert.Equal(t, testSPS[1], record[1], "profile")
	assert.Equal(t, testSPS[3], record[3], "level")
	assert.Equal(t, byte(0xFF), record[4], "4-byte NAL lengths")

	spsLen := int(record[6])<<8 | int(record[7])
	require.Equal(t, len(testSPS), spsLen)
	assert.Equal(t, testSPS, record[8:8+spsLen])

	ppsOffset := 8 + spsLen + 1
	ppsLen := int(record[ppsOffset])<<8 | int(record[ppsOffset+1])
	require.Equal(t, len(testPPS), ppsLen)
	assert.Equal(t, testPPS, record[ppsOffset+2:ppsOffset+2+ppsLen])
}

func TestBuildAVCCRecord_Invalid(t *testing.T) {
	_, err := BuildAVCCRecord([]byte{0x67}, testPPS)
	require.Error(t, err)

	_, err = BuildAVCCRecord(testSPS, nil)
	require.Error(t, err)
}
