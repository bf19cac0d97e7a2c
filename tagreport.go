package llrpclient

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Observation is one decoded tag read out of an RO_ACCESS_REPORT
// (spec.md §4.5). Only EPC is guaranteed present (spec.md §3 data
// model: antenna, rssi, seen_count, and last_seen are all optional) —
// the remaining fields are pointers so a reader that omits them is
// distinguishable from one that reports a zero value.
type Observation struct {
	EPC               string // hex-encoded EPC bytes
	Antenna           *uint16
	RSSI              *int8
	SeenCount         *uint16
	LastSeenUTCMicros *uint64
}

// String renders an Observation for logging, printing "-" for any
// field the reader omitted.
func (o Observation) String() string {
	antenna, rssi, seenCount, lastSeen := "-", "-", "-", "-"
	if o.Antenna != nil {
		antenna = fmt.Sprintf("%d", *o.Antenna)
	}
	if o.RSSI != nil {
		rssi = fmt.Sprintf("%d", *o.RSSI)
	}
	if o.SeenCount != nil {
		seenCount = fmt.Sprintf("%d", *o.SeenCount)
	}
	if o.LastSeenUTCMicros != nil {
		lastSeen = fmt.Sprintf("%d", *o.LastSeenUTCMicros)
	}
	return fmt.Sprintf("epc=%s antenna=%s rssi=%s count=%s last_seen=%s", o.EPC, antenna, rssi, seenCount, lastSeen)
}

// ParseTagReport decodes every TagReportData record in an
// RO_ACCESS_REPORT payload. Malformed records (no EPC, or a record that
// cannot be resynchronised) are dropped silently rather than aborting
// the whole report (spec.md §7, §4.5): one bad record must never take
// down the session. Dropped records are not reported to the caller and
// their bytes are not logged; an error is returned only when the
// report's top-level parameters cannot be decoded.
//
// soleAntenna/soleAntennaKnown implement antenna synthesis: when the
// reader omits the AntennaID TV (legal when only one antenna is
// enabled) and exactly one antenna is configured, that antenna's ID is
// attributed to the record (spec.md §4.5).
func ParseTagReport(payload []byte, soleAntenna uint16, soleAntennaKnown bool) ([]Observation, error) {
	top, err := decodeStrict(payload, 0, len(payload))
	if err != nil {
		return nil, wrapError(KindTagRecordMalformed, "decoding RO_ACCESS_REPORT", err)
	}

	var observations []Observation
	for _, trd := range findAllParams(top, ParamTagReportData) {
		if len(trd.Body) < 4 {
			continue
		}
		params := decodeTagReport(trd.Body, 4, len(trd.Body))
		if obs, ok := parseObservation(params, soleAntenna, soleAntennaKnown); ok {
			observations = append(observations, obs)
		}
	}
	return observations, nil
}

// parseObservation builds an Observation from one TagReportData's
// parameters. Per spec.md §4.5, a record is emitted iff an EPC is
// present; every other field is optional and left unset rather than
// dropping or defaulting the record.
func parseObservation(params []Parameter, soleAntenna uint16, soleAntennaKnown bool) (Observation, bool) {
	var o Observation

	epc, ok := extractEPC(params)
	if !ok {
		return o, false
	}
	o.EPC = epc

	if tv, ok := findTV(params, TVAntennaID); ok && len(tv.Value) >= 2 {
		antenna := binary.BigEndian.Uint16(tv.Value)
		o.Antenna = &antenna
	} else if soleAntennaKnown {
		antenna := soleAntenna
		o.Antenna = &antenna
	}

	if tv, ok := findTV(params, TVPeakRSSI); ok && len(tv.Value) >= 1 {
		rssi := int8(tv.Value[0])
		o.RSSI = &rssi
	}

	if tv, ok := findTV(params, TVTagSeenCount); ok && len(tv.Value) >= 2 {
		count := binary.BigEndian.Uint16(tv.Value)
		o.SeenCount = &count
	}

	if tv, ok := findTV(params, TVLastSeenTimestampUTC); ok && len(tv.Value) >= 8 {
		ts := binary.BigEndian.Uint64(tv.Value)
		o.LastSeenUTCMicros = &ts
	}

	return o, true
}

// extractEPC reads the tag's EPC bytes out of either the fixed-width
// TV EPC-96 form or the variable-length EPCData TLV form.
//
// EPCData carries a bit length, not a byte length; the byte count used
// to slice the value is ceil(bitLength/8), the LLRP-correct rounding —
// not floor, which would silently truncate the last partial byte.
func extractEPC(params []Parameter) (string, bool) {
	if tv, ok := findTV(params, TVEPC96); ok {
		return hex.EncodeToString(tv.Value), true
	}

	p, ok := findParam(params, ParamEPCData)
	if !ok || len(p.Body) < 6 {
		return "", false
	}
	bitLength := int(binary.BigEndian.Uint16(p.Body[4:6]))
	byteLength := (bitLength + 7) / 8
	if 6+byteLength > len(p.Body) {
		return "", false
	}
	return hex.EncodeToString(p.Body[6 : 6+byteLength]), true
}
