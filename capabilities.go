package llrpclient

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

// Capabilities is the subset of GET_READER_CAPABILITIES_RESPONSE this
// client needs: the transmit power table and the hop table IDs
// advertised for the UHF band (spec.md §4.3).
type Capabilities struct {
	PowerTable  []PowerTableEntry // sorted ascending by DBm
	HopTableIDs []uint16          // de-duplicated, zero IDs dropped
}

// parseLLRPStatus decodes the LLRPStatus parameter body (status code,
// error description, both present on every response message) and
// returns a non-nil error when the code is non-zero (spec.md §4.6
// "LLRPStatus check").
func parseLLRPStatus(status Parameter) error {
	body := status.Body
	if len(body) < 6 {
		return newError(KindCapabilitiesMalformed, "LLRPStatus parameter too short")
	}
	code := binary.BigEndian.Uint16(body[4:6])
	if code == 0 {
		return nil
	}
	descLen := 0
	if len(body) >= 8 {
		descLen = int(binary.BigEndian.Uint16(body[6:8]))
	}
	desc := ""
	if 8+descLen <= len(body) {
		desc = string(body[8 : 8+descLen])
	}
	return &LLRPStatusError{Code: code, Description: desc}
}

// ParseCapabilities parses the payload of a GET_READER_CAPABILITIES_RESPONSE
// message into a Capabilities value (spec.md §4.3): an LLRPStatus check
// first, then RegulatoryCapabilities -> UHFBandCapabilities -> the power
// table and hop table entries nested inside it.
func ParseCapabilities(payload []byte) (*Capabilities, error) {
	top, err := decodeStrict(payload, 0, len(payload))
	if err != nil {
		return nil, wrapError(KindCapabilitiesMalformed, "decoding top-level parameters", err)
	}

	if status, ok := findParam(top, ParamLLRPStatus); ok {
		if statusErr := parseLLRPStatus(status); statusErr != nil {
			return nil, statusErr
		}
	}

	reg, ok := findParam(top, ParamRegulatoryCapabilities)
	if !ok {
		return nil, newError(KindCapabilitiesMalformed, "missing RegulatoryCapabilities")
	}
	regParams, err := decodeStrict(reg.Body, 4, len(reg.Body))
	if err != nil {
		return nil, wrapError(KindCapabilitiesMalformed, "decoding RegulatoryCapabilities", err)
	}

	band, ok := findParam(regParams, ParamUHFBandCapabilities)
	if !ok {
		return nil, newError(KindCapabilitiesMalformed, "missing UHFBandCapabilities")
	}
	bandParams, err := decodeStrict(band.Body, 4, len(band.Body))
	if err != nil {
		return nil, wrapError(KindCapabilitiesMalformed, "decoding UHFBandCapabilities", err)
	}

	powerTable, err := parsePowerTable(bandParams)
	if err != nil {
		return nil, err
	}
	hopTableIDs := parseHopTableIDs(bandParams)

	return &Capabilities{PowerTable: powerTable, HopTableIDs: hopTableIDs}, nil
}

// parsePowerTable collects every TransmitPowerLevelTableEntry nested in
// bandParams and returns them sorted ascending by DBm.
func parsePowerTable(bandParams []Parameter) ([]PowerTableEntry, error) {
	entries := findAllParams(bandParams, ParamTransmitPowerLevelTableEntry)
	table := make([]PowerTableEntry, 0, len(entries))
	for _, e := range entries {
		if len(e.Body) < 8 {
			return nil, errors.WithStack(newError(KindCapabilitiesMalformed, "malformed TransmitPowerLevelTableEntry"))
		}
		index := binary.BigEndian.Uint16(e.Body[4:6])
		raw := binary.BigEndian.Uint16(e.Body[6:8])
		// Transmit power values are carried in units of 0.01 dBm
		// (spec.md §4.3).
		dbm := float32(raw) / 100.0
		table = append(table, PowerTableEntry{Index: index, DBm: dbm})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].DBm < table[j].DBm })
	return table, nil
}

// parseHopTableIDs collects every non-zero FrequencyHopTable ID nested
// in bandParams, de-duplicated, preserving first-seen order.
func parseHopTableIDs(bandParams []Parameter) []uint16 {
	hops := findAllParams(bandParams, ParamFrequencyHopTable)
	seen := make(map[uint16]bool)
	var ids []uint16
	for _, h := range hops {
		if len(h.Body) < 6 {
			continue
		}
		id := binary.BigEndian.Uint16(h.Body[4:6])
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
