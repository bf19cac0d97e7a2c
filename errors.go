package llrpclient

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies the category of an Error, per spec.md §7.
type Kind uint8

const (
	// KindFrameLengthInvalid: the frame codec read a total-length field
	// smaller than FrameHeaderSize.
	KindFrameLengthInvalid Kind = iota
	// KindUnexpectedMessage: a reply did not match the message type the
	// session controller's current state expected.
	KindUnexpectedMessage
	// KindLlrpStatus: a response carried a non-zero LLRPStatus code.
	KindLlrpStatus
	// KindParameterError: a response carried a ParameterError parameter.
	KindParameterError
	// KindFieldError: a response carried a FieldError parameter.
	KindFieldError
	// KindCapabilitiesMalformed: GET_READER_CAPABILITIES_RESPONSE could
	// not be parsed.
	KindCapabilitiesMalformed
	// KindTagRecordMalformed: a single TagReportData record was dropped;
	// never aborts the session (spec.md §7).
	KindTagRecordMalformed
	// KindSocketError: the underlying TCP connection failed.
	KindSocketError
	// KindConnectTimeout: the 30s connect-phase read timeout (spec.md
	// §5) elapsed before GET_READER_CAPABILITIES_RESPONSE arrived.
	KindConnectTimeout
)

func (k Kind) String() string {
	switch k {
	case KindFrameLengthInvalid:
		return "FrameLengthInvalid"
	case KindUnexpectedMessage:
		return "UnexpectedMessage"
	case KindLlrpStatus:
		return "LlrpStatus"
	case KindParameterError:
		return "ParameterError"
	case KindFieldError:
		return "FieldError"
	case KindCapabilitiesMalformed:
		return "CapabilitiesMalformed"
	case KindTagRecordMalformed:
		return "TagRecordMalformed"
	case KindSocketError:
		return "SocketError"
	case KindConnectTimeout:
		return "ConnectTimeout"
	default:
		return "Unknown"
	}
}

// Error is the single error type surfaced across a session boundary
// (spec.md §7: "every error surfaces a stable kind tag plus a free-form
// detail"). Unlike the teacher's three-way FatalError/NonFatalError/
// ProtocolError split, spec.md's kind list is a flat enum, so one type
// with a Kind field is sufficient.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llrp %s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("llrp %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// newError builds an *Error of the given kind.
func newError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// wrapError builds an *Error of the given kind, preserving cause.
func wrapError(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// LLRPStatusError carries the status code and description decoded from
// an LLRPStatus parameter (spec.md §4.6 "LLRPStatus check").
type LLRPStatusError struct {
	Code        uint16
	Description string
}

func (e *LLRPStatusError) Error() string {
	return fmt.Sprintf("llrp status %d: %s", e.Code, e.Description)
}

// Sentinel errors for conditions that are not protocol-kind-specific.
var (
	// ErrNotConnected is returned by commands issued before Connect.
	ErrNotConnected = stderrors.New("llrpclient: not connected")
	// ErrClosed is returned by commands issued after Disconnect.
	ErrClosed = stderrors.New("llrpclient: client closed")
)
