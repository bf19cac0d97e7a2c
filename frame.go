package llrpclient

import (
	"encoding/binary"
	"fmt"
)

// FrameHeader is the fixed 10-byte LLRP frame header (spec.md §3, §4.1):
// a 2-byte version/type prefix, a 4-byte total length (counted from the
// start of the header, header included), and a 4-byte message ID.
type FrameHeader struct {
	Type   uint16
	Length uint32 // total bytes, including the 10-byte header
	ID     uint32
}

// Frame is a fully framed LLRP message: header plus payload bytes.
type Frame struct {
	Header  FrameHeader
	Payload []byte
}

// String renders a Frame for log lines.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{%s id=%d len=%d}", MsgTypeName(f.Header.Type), f.Header.ID, f.Header.Length)
}

// EncodeFrame writes a complete LLRP frame for msgType/id/payload
// (spec.md §4.1 "Outbound"). Byte 0 carries version 1 in its upper bits
// plus the top two bits of the 10-bit type; byte 1 carries the low 8
// bits of the type.
func EncodeFrame(msgType uint16, id uint32, payload []byte) []byte {
	total := FrameHeaderSize + len(payload)
	buf := make([]byte, total)
	buf[0] = 0x04 | byte((msgType>>8)&0x03)
	buf[1] = byte(msgType & 0xFF)
	binary.BigEndian.PutUint32(buf[2:6], uint32(total))
	binary.BigEndian.PutUint32(buf[6:10], id)
	copy(buf[10:], payload)
	return buf
}

// decodeFrameHeader parses the 10-byte header at the start of b. b must
// be at least FrameHeaderSize bytes; the caller is responsible for that
// check (frameDecoder.Next does it before calling this).
func decodeFrameHeader(b []byte) FrameHeader {
	msgType := (uint16(b[0]&0x03) << 8) | uint16(b[1])
	length := binary.BigEndian.Uint32(b[2:6])
	id := binary.BigEndian.Uint32(b[6:10])
	return FrameHeader{Type: msgType, Length: length, ID: id}
}

// frameDecoder incrementally extracts complete LLRP frames from an
// append-only byte stream (spec.md §4.1 "Inbound"). It never blocks and
// never discards bytes except by yielding a complete frame; this is the
// session controller's "receive buffer" (spec.md §3 session state).
type frameDecoder struct {
	buf []byte
}

// Feed appends newly-read bytes to the decoder's buffer.
func (d *frameDecoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next extracts the next complete frame from the buffer, if one is
// available. It returns (nil, nil, false) when more bytes are needed,
// (frame, nil, true) on success, and (nil, err, false) for a malformed
// header that can never be resynchronised — a total length below
// FrameHeaderSize (spec.md §4.1: "Fails with FrameLengthInvalid if
// total_length < 10").
func (d *frameDecoder) Next() (*Frame, error, bool) {
	if len(d.buf) < FrameHeaderSize {
		return nil, nil, false
	}
	hdr := decodeFrameHeader(d.buf)
	if hdr.Length < FrameHeaderSize {
		return nil, newError(KindFrameLengthInvalid,
			fmt.Sprintf("total length %d below header size %d", hdr.Length, FrameHeaderSize)), false
	}
	if uint32(len(d.buf)) < hdr.Length {
		return nil, nil, false
	}
	msg := d.buf[:hdr.Length]
	payload := append([]byte(nil), msg[FrameHeaderSize:]...)
	d.buf = d.buf[hdr.Length:]
	return &Frame{Header: hdr, Payload: payload}, nil, true
}

// DecodeFrame is a convenience wrapper for tests and one-shot decoding:
// it decodes exactly one frame from b and returns it along with any
// undecoded remainder.
func DecodeFrame(b []byte) (frame *Frame, rest []byte, err error) {
	d := &frameDecoder{buf: append([]byte(nil), b...)}
	f, err, ok := d.Next()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, newError(KindFrameLengthInvalid, "incomplete frame")
	}
	return f, d.buf, nil
}
