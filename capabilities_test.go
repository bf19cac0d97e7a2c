package llrpclient

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeLLRPStatus(code uint16, desc string) []byte {
	body := make([]byte, 4+len(desc))
	binary.BigEndian.PutUint16(body[0:2], code)
	binary.BigEndian.PutUint16(body[2:4], uint16(len(desc)))
	copy(body[4:], desc)
	return EncodeTLV(ParamLLRPStatus, body)
}

func encodePowerEntry(index uint16, dbm float32) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint16(body[0:2], index)
	binary.BigEndian.PutUint16(body[2:4], uint16(dbm*100))
	return EncodeTLV(ParamTransmitPowerLevelTableEntry, body)
}

func encodeHopTable(id uint16) []byte {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, id)
	return EncodeTLV(ParamFrequencyHopTable, body)
}

func buildCapabilitiesPayload(statusCode uint16, entries [][]byte, hops [][]byte) []byte {
	uhfBody := []byte{}
	for _, e := range entries {
		uhfBody = append(uhfBody, e...)
	}
	for _, h := range hops {
		uhfBody = append(uhfBody, h...)
	}
	uhf := EncodeTLV(ParamUHFBandCapabilities, uhfBody)
	reg := EncodeTLV(ParamRegulatoryCapabilities, uhf)

	var payload []byte
	payload = append(payload, encodeLLRPStatus(statusCode, "")...)
	payload = append(payload, reg...)
	return payload
}

func TestParseCapabilities_PowerTableSortedAscending(t *testing.T) {
	payload := buildCapabilitiesPayload(0, [][]byte{
		encodePowerEntry(2, 30.0),
		encodePowerEntry(0, 10.0),
		encodePowerEntry(1, 20.0),
	}, nil)

	caps, err := ParseCapabilities(payload)
	require.NoError(t, err)
	require.Len(t, caps.PowerTable, 3)
	assert.Equal(t, float32(10.0), caps.PowerTable[0].DBm)
	assert.Equal(t, float32(20.0), caps.PowerTable[1].DBm)
	assert.Equal(t, float32(30.0), caps.PowerTable[2].DBm)
	assert.Equal(t, uint16(0), caps.PowerTable[0].Index)
	assert.Equal(t, uint16(2), caps.PowerTable[2].Index)
}

func TestParseCapabilities_HopTableIDsDedupAndDropZero(t *testing.T) {
	payload := buildCapabilitiesPayload(0, nil, [][]byte{
		encodeHopTable(1),
		encodeHopTable(0),
		encodeHopTable(1),
		encodeHopTable(2),
	})

	caps, err := ParseCapabilities(payload)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2}, caps.HopTableIDs)
}

func TestParseCapabilities_NonZeroStatusReturnsError(t *testing.T) {
	payload := buildCapabilitiesPayload(1, nil, nil)
	_, err := ParseCapabilities(payload)
	require.Error(t, err)
	var statusErr *LLRPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, uint16(1), statusErr.Code)
}

func TestParseCapabilities_MissingRegulatoryCapabilities(t *testing.T) {
	payload := encodeLLRPStatus(0, "")
	_, err := ParseCapabilities(payload)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCapabilitiesMalformed))
}

func TestParseCapabilities_Idempotent(t *testing.T) {
	payload := buildCapabilitiesPayload(0, [][]byte{encodePowerEntry(0, 30.0)}, [][]byte{encodeHopTable(4)})

	a, err := ParseCapabilities(payload)
	require.NoError(t, err)
	b, err := ParseCapabilities(payload)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
