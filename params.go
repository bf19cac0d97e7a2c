package llrpclient

import "encoding/binary"

// ParamKind distinguishes the two disjoint LLRP parameter encodings
// (spec.md §3).
type ParamKind uint8

const (
	ParamKindTLV ParamKind = iota
	ParamKindTV
)

// Parameter is a single decoded TLV or TV parameter. Body/Value are
// slices into the caller's original buffer — a decoded Parameter never
// owns storage, so nested decode can recurse without copying.
type Parameter struct {
	Kind ParamKind
	Type uint16 // masked TLV type, or TV type (low 7 bits)

	// Body is valid for Kind == ParamKindTLV: the full parameter
	// including its 4-byte header, so a nested decode can recurse from
	// offset 4.
	Body []byte

	// Value is valid for Kind == ParamKindTV: just the fixed-size value
	// bytes.
	Value []byte
}

// EncodeTLV returns a complete TLV-encoded parameter: u16(type) ||
// u16(4+len(value)) || value (spec.md §4.2).
func EncodeTLV(paramType uint16, value []byte) []byte {
	out := make([]byte, 4+len(value))
	binary.BigEndian.PutUint16(out[0:2], paramType)
	binary.BigEndian.PutUint16(out[2:4], uint16(4+len(value)))
	copy(out[4:], value)
	return out
}

// EncodeTV returns a complete TV-encoded parameter: u8(0x80|tvType) ||
// value (spec.md §4.2). The caller must pass a value of the fixed
// length tvType requires.
func EncodeTV(tvType uint8, value []byte) []byte {
	out := make([]byte, 1+len(value))
	out[0] = 0x80 | (tvType & tvTypeMask)
	copy(out[1:], value)
	return out
}

// resyncWindow bounds the forward scan for the next MSB-set byte when
// resynchronising after a malformed parameter inside TagReportData
// (spec.md §4.2).
const resyncWindow = 16

// decodeParameters walks TLV/TV parameters over buf[lo:hi].
//
// With resync false, parsing is strict (top-level message parsing,
// spec.md §4.2): an unknown TV type or malformed TLV length returns an
// error immediately.
//
// With resync true (used only inside TagReportData, spec.md §9 OQ2),
// the same conditions instead trigger a forward scan of up to
// resyncWindow bytes for the next MSB-set byte; found, decoding resumes
// there; not found, decoding returns no parameters and no error — the
// caller abandons the current tag record and moves on to the next
// TagReportData.
func decodeParameters(buf []byte, lo, hi int, resync bool) ([]Parameter, error) {
	var params []Parameter
	c := lo

	for c < hi {
		b0 := buf[c]

		if b0&0x80 != 0 {
			tvType := b0 & tvTypeMask
			vlen, known := tvValueLen[tvType]
			if !known {
				if !resync {
					return nil, newError(KindTagRecordMalformed, "unknown TV parameter type in strict context")
				}
				next, found := resyncScan(buf, c, hi)
				if !found {
					return nil, nil
				}
				c = next
				continue
			}
			if c+1+vlen > hi {
				break // truncated, terminate (spec.md §4.2)
			}
			params = append(params, Parameter{Kind: ParamKindTV, Type: uint16(tvType), Value: buf[c+1 : c+1+vlen]})
			c += 1 + vlen
			continue
		}

		// TLV
		if c+4 > hi {
			break // truncated, terminate
		}
		rawType := binary.BigEndian.Uint16(buf[c : c+2])
		maskedType := rawType & parameterTypeMask
		length := int(binary.BigEndian.Uint16(buf[c+2 : c+4]))

		if length == 0 {
			// Explicit terminator for the containing scope (spec.md §3),
			// distinct from a malformed length.
			break
		}
		if length < 4 || c+length > hi {
			if !resync {
				return nil, newError(KindTagRecordMalformed, "malformed TLV length in strict context")
			}
			next, found := resyncScan(buf, c, hi)
			if !found {
				return nil, nil
			}
			c = next
			continue
		}

		params = append(params, Parameter{Kind: ParamKindTLV, Type: maskedType, Body: buf[c : c+length]})
		c += length
	}

	return params, nil
}

// resyncScan looks forward from c+1 (never c itself, to guarantee
// progress) for the next byte with its MSB set, within resyncWindow
// bytes and never past hi.
func resyncScan(buf []byte, c, hi int) (int, bool) {
	limit := c + 1 + resyncWindow
	if limit > hi {
		limit = hi
	}
	for i := c + 1; i < limit; i++ {
		if buf[i]&0x80 != 0 {
			return i, true
		}
	}
	return 0, false
}

// decodeStrict decodes top-level message parameters with no
// resynchronisation (spec.md §4.2: "top-level message parsing is
// strict").
func decodeStrict(buf []byte, lo, hi int) ([]Parameter, error) {
	return decodeParameters(buf, lo, hi, false)
}

// decodeTagReport decodes parameters inside a TagReportData body with
// resynchronisation enabled (spec.md §4.2, §9 OQ2). It never returns an
// error: a record that cannot be resynchronised yields no parameters, so
// the record is dropped.
func decodeTagReport(buf []byte, lo, hi int) []Parameter {
	params, _ := decodeParameters(buf, lo, hi, true)
	return params
}

// findParam returns the first TLV parameter of the given type, if any.
func findParam(params []Parameter, paramType uint16) (Parameter, bool) {
	for _, p := range params {
		if p.Kind == ParamKindTLV && p.Type == paramType {
			return p, true
		}
	}
	return Parameter{}, false
}

// findAllParams returns every TLV parameter of the given type, in order.
func findAllParams(params []Parameter, paramType uint16) []Parameter {
	var out []Parameter
	for _, p := range params {
		if p.Kind == ParamKindTLV && p.Type == paramType {
			out = append(out, p)
		}
	}
	return out
}

// findTV returns the first TV parameter of the given type, if any.
func findTV(params []Parameter, tvType uint8) (Parameter, bool) {
	for _, p := range params {
		if p.Kind == ParamKindTV && p.Type == uint16(tvType) {
			return p, true
		}
	}
	return Parameter{}, false
}
