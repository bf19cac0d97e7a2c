// Package llrpclient implements a client for the Low Level Reader
// Protocol (LLRP), targeting UHF RFID readers in the Zebra FX9600
// family, over TCP/IP.
package llrpclient

// Message types (LLRP spec §11). Direction noted per SPEC_FULL.md §6.1.
const (
	MsgGetReaderCapabilities         uint16 = 1  // -> reader
	MsgGetReaderCapabilitiesResponse uint16 = 11 // <- reader
	MsgCloseConnection               uint16 = 14 // -> reader
	MsgAddROSpec                     uint16 = 20 // -> reader
	MsgDeleteROSpec                  uint16 = 21 // -> reader
	MsgStartROSpec                   uint16 = 22 // -> reader
	MsgEnableROSpec                  uint16 = 24 // -> reader
	MsgAddROSpecResponse             uint16 = 30 // <- reader
	MsgDeleteROSpecResponse          uint16 = 31 // <- reader
	MsgStartROSpecResponse           uint16 = 32 // <- reader
	MsgEnableROSpecResponse          uint16 = 34 // <- reader
	MsgROAccessReport                uint16 = 61 // <- reader
	MsgKeepalive                     uint16 = 62 // <- reader
	MsgReaderEventNotification       uint16 = 63 // <- reader
	MsgEnableEventsAndReports        uint16 = 64 // -> reader
	MsgKeepaliveAck                  uint16 = 72 // -> reader
	MsgErrorMessage                  uint16 = 100
)

var msgTypeNames = map[uint16]string{
	MsgGetReaderCapabilities:         "GET_READER_CAPABILITIES",
	MsgGetReaderCapabilitiesResponse: "GET_READER_CAPABILITIES_RESPONSE",
	MsgCloseConnection:               "CLOSE_CONNECTION",
	MsgAddROSpec:                     "ADD_ROSPEC",
	MsgAddROSpecResponse:             "ADD_ROSPEC_RESPONSE",
	MsgDeleteROSpec:                  "DELETE_ROSPEC",
	MsgDeleteROSpecResponse:          "DELETE_ROSPEC_RESPONSE",
	MsgStartROSpec:                   "START_ROSPEC",
	MsgStartROSpecResponse:           "START_ROSPEC_RESPONSE",
	MsgEnableROSpec:                  "ENABLE_ROSPEC",
	MsgEnableROSpecResponse:          "ENABLE_ROSPEC_RESPONSE",
	MsgROAccessReport:                "RO_ACCESS_REPORT",
	MsgKeepalive:                     "KEEPALIVE",
	MsgReaderEventNotification:       "READER_EVENT_NOTIFICATION",
	MsgEnableEventsAndReports:        "ENABLE_EVENTS_AND_REPORTS",
	MsgKeepaliveAck:                  "KEEPALIVE_ACK",
	MsgErrorMessage:                  "ERROR_MESSAGE",
}

// MsgTypeName returns a readable name for a message type, for logging.
func MsgTypeName(t uint16) string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// TLV parameter types (LLRP spec §11), carried in the low 10 bits of a
// TLV type field.
const (
	ParamLLRPStatus                   uint16 = 287
	ParamRegulatoryCapabilities       uint16 = 143
	ParamUHFBandCapabilities          uint16 = 144
	ParamTransmitPowerLevelTableEntry uint16 = 145
	ParamFrequencyHopTable            uint16 = 147
	ParamROSpec                       uint16 = 177
	ParamROBoundarySpec               uint16 = 178
	ParamROSpecStartTrigger           uint16 = 179
	ParamROSpecStopTrigger            uint16 = 182
	ParamAISpec                       uint16 = 183
	ParamAISpecStopTrigger            uint16 = 184
	ParamInventoryParameterSpec       uint16 = 186
	ParamAntennaConfiguration         uint16 = 222
	ParamRFTransmitter                uint16 = 224
	ParamROReportSpec                 uint16 = 237
	ParamTagReportContentSelector     uint16 = 238
	ParamTagReportData                uint16 = 240
	ParamEPCData                      uint16 = 241
	ParamC1G2InventoryCommand         uint16 = 330
	ParamFieldError                   uint16 = 288
	ParamParameterError               uint16 = 289
)

// parameterTypeMask isolates the 10-bit parameter type from the 6 high
// bits of a TLV type field, which are vendor/reserved (the top one is
// always clear on a TLV, since a set MSB marks a TV parameter)
// (spec.md §3: "high bits vendor/reserved and MUST be masked").
const parameterTypeMask uint16 = 0x03FF

// TV parameter types, carried in the low 7 bits of the TV type byte
// (the MSB marks the byte as a TV type), per spec.md §3.
const (
	TVAntennaID                uint8 = 1
	TVPeakRSSI                 uint8 = 6
	TVChannelIndex             uint8 = 7
	TVFirstSeenTimestampUTC    uint8 = 8
	TVLastSeenTimestampUTC     uint8 = 9
	TVTagSeenCount             uint8 = 10
	TVEPC96                    uint8 = 13
	TVROSpecID                 uint8 = 14
	TVSpecIndex                uint8 = 15
	TVInventoryParameterSpecID uint8 = 16
)

// tvTypeMask isolates the 7-bit TV type from the MSB-set flag byte.
const tvTypeMask uint8 = 0x7F

// tvValueLen maps TV type to its fixed value length in bytes (spec.md §3
// table). A TV type absent from this map is "unknown" for decode
// purposes and triggers the resynchronisation policy in TagReportData
// contexts (spec.md §4.2).
var tvValueLen = map[uint8]int{
	TVAntennaID:                2,
	TVPeakRSSI:                 1,
	TVChannelIndex:             2,
	TVFirstSeenTimestampUTC:    8,
	TVLastSeenTimestampUTC:     8,
	TVTagSeenCount:             2,
	TVEPC96:                    12,
	TVROSpecID:                 4,
	TVSpecIndex:                2,
	TVInventoryParameterSpecID: 2,
}

// Protocol-level constants.
const (
	// FrameHeaderSize is the fixed LLRP frame header size in bytes:
	// 2-byte type/version prefix + 4-byte total length + 4-byte message ID.
	FrameHeaderSize = 10

	// ProtocolVersion is fixed at 1 on outbound messages (spec.md §3).
	ProtocolVersion uint8 = 1

	// DefaultPort is the standard LLRP TCP port.
	DefaultPort = 5084

	// defaultROSpecID is the only ROSpec ID this client ever installs.
	defaultROSpecID uint32 = 1

	// fallbackHopTableID is used when capabilities advertise no hop
	// tables (spec.md §3, §4.6).
	fallbackHopTableID uint16 = 1

	// defaultPowerDBm is used for antennas missing from
	// SessionConfig.PowerDBm (spec.md §3 invariant).
	defaultPowerDBm float32 = 30.0
)

// ROSpec-builder field constants (spec.md §4.4).
const (
	roTriggerTypeNull uint8 = 0
	roReportTriggerN  uint8 = 1 // UponNTagsOrEndOfROSpec
	protocolIDEPCGen2 uint8 = 1 // EPCGlobalClass1Gen2
	roCurrentDisabled uint8 = 0
	roPriorityDefault uint8 = 0
)
