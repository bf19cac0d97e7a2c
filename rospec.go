package llrpclient

import (
	"encoding/binary"
	"math"
)

// BuildROSpec assembles the single TLV(ParamROSpec) byte sequence this
// client ever installs, for antennas configured at powerDBm, using
// hopTableID and powerTable learned from capabilities (spec.md §4.4).
//
// The FX9600 firmware this client targets rejects any ROSpec that:
//   - carries a C1G2InventoryCommand parameter — omitted entirely;
//     the reader applies its own default inventory command.
//   - sets a non-zero TagReportContentSelector bitmask — always 0x0000;
//     every report field this client needs (EPC, antenna, RSSI, seen
//     count, timestamp) is carried unconditionally as TV parameters in
//     RO_ACCESS_REPORT regardless of the selector.
//   - uses a start/stop trigger encoding other than the fixed 5-byte
//     Null-duration form — both triggers are always u8(Null) + u32(0).
func BuildROSpec(antennas []uint16, powerDBm map[uint16]float32, powerTable []PowerTableEntry, hopTableID uint16) []byte {
	boundarySpec := buildROBoundarySpec()
	aiSpec := buildAISpec(antennas, powerDBm, powerTable, hopTableID)
	reportSpec := buildROReportSpec()

	body := make([]byte, 6)
	binary.BigEndian.PutUint32(body[0:4], defaultROSpecID)
	body[4] = roPriorityDefault
	body[5] = roCurrentDisabled
	body = append(body, boundarySpec...)
	body = append(body, aiSpec...)
	body = append(body, reportSpec...)

	return EncodeTLV(ParamROSpec, body)
}

// nullDurationTrigger returns the fixed 5-byte (u8 triggerType=Null +
// u32 duration=0) body shared by ROSpecStopTrigger and AISpecStopTrigger.
func nullDurationTrigger() []byte {
	return make([]byte, 5) // triggerType=0 (roTriggerTypeNull), duration=0
}

func buildROBoundarySpec() []byte {
	startTrigger := EncodeTLV(ParamROSpecStartTrigger, []byte{roTriggerTypeNull})
	stopTrigger := EncodeTLV(ParamROSpecStopTrigger, nullDurationTrigger())
	body := append(append([]byte{}, startTrigger...), stopTrigger...)
	return EncodeTLV(ParamROBoundarySpec, body)
}

func buildAISpec(antennas []uint16, powerDBm map[uint16]float32, powerTable []PowerTableEntry, hopTableID uint16) []byte {
	body := make([]byte, 2+2*len(antennas))
	binary.BigEndian.PutUint16(body[0:2], uint16(len(antennas)))
	for i, a := range antennas {
		binary.BigEndian.PutUint16(body[2+2*i:4+2*i], a)
	}

	body = append(body, EncodeTLV(ParamAISpecStopTrigger, nullDurationTrigger())...)
	body = append(body, buildInventoryParameterSpec(antennas, powerDBm, powerTable, hopTableID)...)

	return EncodeTLV(ParamAISpec, body)
}

func buildInventoryParameterSpec(antennas []uint16, powerDBm map[uint16]float32, powerTable []PowerTableEntry, hopTableID uint16) []byte {
	body := make([]byte, 3)
	binary.BigEndian.PutUint16(body[0:2], 1) // InventoryParameterSpecID
	body[2] = protocolIDEPCGen2

	for _, a := range antennas {
		dbm, ok := powerDBm[a]
		if !ok {
			dbm = defaultPowerDBm
		}
		index := PowerIndexForDBm(dbm, powerTable)

		rfBody := make([]byte, 6)
		binary.BigEndian.PutUint16(rfBody[0:2], hopTableID)
		binary.BigEndian.PutUint16(rfBody[2:4], 0) // ChannelIndex: reader-hop, always 0
		binary.BigEndian.PutUint16(rfBody[4:6], index)
		rfTransmitter := EncodeTLV(ParamRFTransmitter, rfBody)

		antCfgBody := make([]byte, 2)
		binary.BigEndian.PutUint16(antCfgBody[0:2], a)
		antCfgBody = append(antCfgBody, rfTransmitter...)

		body = append(body, EncodeTLV(ParamAntennaConfiguration, antCfgBody)...)
	}

	return EncodeTLV(ParamInventoryParameterSpec, body)
}

func buildROReportSpec() []byte {
	selector := EncodeTLV(ParamTagReportContentSelector, []byte{0x00, 0x00})

	body := make([]byte, 3)
	body[0] = roReportTriggerN
	binary.BigEndian.PutUint16(body[1:3], 1) // N=1: report after every tag observation
	body = append(body, selector...)

	return EncodeTLV(ParamROReportSpec, body)
}

// PowerIndexForDBm picks the power table index closest to dbm, breaking
// ties toward the lower index (spec.md §4.4, §9 Property 5). When
// powerTable is empty (capabilities advertised none), it falls back to
// round(dbm) clamped to [1, 100] — a conservative guess at a
// reader-native index scale.
func PowerIndexForDBm(dbm float32, powerTable []PowerTableEntry) uint16 {
	if len(powerTable) == 0 {
		v := int(math.Round(float64(dbm)))
		if v < 1 {
			v = 1
		}
		if v > 100 {
			v = 100
		}
		return uint16(v)
	}

	best := powerTable[0]
	bestDiff := math.Abs(float64(best.DBm) - float64(dbm))
	for _, e := range powerTable[1:] {
		diff := math.Abs(float64(e.DBm) - float64(dbm))
		if diff < bestDiff || (diff == bestDiff && e.Index < best.Index) {
			best = e
			bestDiff = diff
		}
	}
	return best.Index
}
