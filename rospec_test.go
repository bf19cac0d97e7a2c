package llrpclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildROSpec_NoC1G2InventoryCommand(t *testing.T) {
	payload := BuildROSpec([]uint16{1}, map[uint16]float32{1: 30}, nil, 1)

	top, err := decodeStrict(payload, 0, len(payload))
	require.NoError(t, err)
	require.Len(t, top, 1)
	ro := top[0]
	require.Equal(t, ParamROSpec, ro.Type)

	aiSpec, ok := findParam(decodeROSpecBody(t, ro), ParamAISpec)
	require.True(t, ok)
	ipsParams := decodeAISpecBody(t, aiSpec)
	ips, ok := findParam(ipsParams, ParamInventoryParameterSpec)
	require.True(t, ok)

	inner, err := decodeStrict(ips.Body, 7, len(ips.Body))
	require.NoError(t, err)
	_, hasC1G2 := findParam(inner, ParamC1G2InventoryCommand)
	assert.False(t, hasC1G2, "ROSpec must never carry a C1G2InventoryCommand")
}

func TestBuildROSpec_TagReportContentSelectorIsZero(t *testing.T) {
	payload := BuildROSpec([]uint16{1}, map[uint16]float32{1: 30}, nil, 1)
	top, err := decodeStrict(payload, 0, len(payload))
	require.NoError(t, err)
	ro := top[0]

	reportSpec, ok := findParam(decodeROSpecBody(t, ro), ParamROReportSpec)
	require.True(t, ok)
	reportInner, err := decodeStrict(reportSpec.Body, 7, len(reportSpec.Body))
	require.NoError(t, err)
	selector, ok := findParam(reportInner, ParamTagReportContentSelector)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x00}, selector.Body[4:])
}

func TestBuildROSpec_StopTriggersAreFiveBytes(t *testing.T) {
	payload := BuildROSpec([]uint16{1}, map[uint16]float32{1: 30}, nil, 1)
	top, err := decodeStrict(payload, 0, len(payload))
	require.NoError(t, err)
	ro := top[0]

	boundary, ok := findParam(decodeROSpecBody(t, ro), ParamROBoundarySpec)
	require.True(t, ok)
	boundaryInner, err := decodeStrict(boundary.Body, 4, len(boundary.Body))
	require.NoError(t, err)
	stop, ok := findParam(boundaryInner, ParamROSpecStopTrigger)
	require.True(t, ok)
	assert.Len(t, stop.Body[4:], 5)
}

func TestBuildROSpec_HopTableIDFromCapabilities(t *testing.T) {
	payload := BuildROSpec([]uint16{1}, map[uint16]float32{1: 30}, nil, 9)
	top, _ := decodeStrict(payload, 0, len(payload))
	ro := top[0]
	aiSpec, _ := findParam(decodeROSpecBody(t, ro), ParamAISpec)
	ips, _ := findParam(decodeAISpecBody(t, aiSpec), ParamInventoryParameterSpec)
	inner, _ := decodeStrict(ips.Body, 7, len(ips.Body))
	antCfg, ok := findParam(inner, ParamAntennaConfiguration)
	require.True(t, ok)
	antInner, err := decodeStrict(antCfg.Body, 6, len(antCfg.Body))
	require.NoError(t, err)
	rf, ok := findParam(antInner, ParamRFTransmitter)
	require.True(t, ok)
	assert.Equal(t, uint16(9), beU16(rf.Body[4:6]))
}

func TestPowerIndexForDBm_ClosestMatchTieBreaksLowerIndex(t *testing.T) {
	table := []PowerTableEntry{{Index: 5, DBm: 29}, {Index: 2, DBm: 31}}
	// 30 is equidistant from 29 and 31; the lower index wins.
	assert.Equal(t, uint16(2), PowerIndexForDBm(30, table))
}

func TestPowerIndexForDBm_FallbackWhenTableEmpty(t *testing.T) {
	assert.Equal(t, uint16(25), PowerIndexForDBm(25, nil))
	assert.Equal(t, uint16(1), PowerIndexForDBm(-5, nil))
	assert.Equal(t, uint16(100), PowerIndexForDBm(500, nil))
}

// decodeROSpecBody decodes the nested parameters inside the top-level
// ROSpec parameter, skipping its 4-byte header plus the fixed
// ROSpecID(4)+Priority(1)+CurrentState(1) fields.
func decodeROSpecBody(t *testing.T, ro Parameter) []Parameter {
	t.Helper()
	params, err := decodeStrict(ro.Body, 10, len(ro.Body))
	require.NoError(t, err)
	return params
}

// decodeAISpecBody decodes the nested parameters inside an AISpec body,
// skipping its 4-byte header plus the fixed AntennaCount/AntennaID list
// that precedes the nested stop-trigger and inventory-parameter-spec
// parameters.
func decodeAISpecBody(t *testing.T, aiSpec Parameter) []Parameter {
	t.Helper()
	require.True(t, len(aiSpec.Body) >= 6)
	count := beU16(aiSpec.Body[4:6])
	offset := 6 + 2*int(count)
	params, err := decodeStrict(aiSpec.Body, offset, len(aiSpec.Body))
	require.NoError(t, err)
	return params
}

func beU16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
