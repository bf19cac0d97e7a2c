package llrpclient

import (
	"sync"
	"sync/atomic"
)

// PowerTableEntry is one entry of the reader's transmit power table, as
// advertised in GET_READER_CAPABILITIES_RESPONSE (spec.md §4.3):
// Index is the reader-assigned table index used inside ROSpec/antenna
// configuration parameters, DBm is the power level it refers to.
type PowerTableEntry struct {
	Index uint16
	DBm   float32
}

// Session holds the mutable state of one LLRP connection: the message
// ID counter, the reader capabilities learned during connect, and the
// flags the controller consults while dispatching (spec.md §3 "session
// state", §4.6).
type Session struct {
	// messageID is the next outbound message ID. LLRP message IDs carry
	// no correlation semantics (spec.md §4.6) — this is a bare
	// monotonic counter that wraps at 2^32, unlike the teacher's
	// step-by-2 scheme tied to pending-query matching.
	messageID uint32

	mu sync.RWMutex

	// powerTable is sorted ascending by DBm; empty until capabilities
	// arrive.
	powerTable []PowerTableEntry
	// hopTableIDs lists every hop table ID the reader advertised for
	// the UHF band.
	hopTableIDs []uint16
	// antennaPowerIndex caches the chosen power table index per antenna,
	// computed once from SessionConfig.PowerDBm and powerTable.
	antennaPowerIndex map[uint16]uint16

	// rospecStarted is false from connect until START_ROSPEC_RESPONSE
	// with status Success arrives; RO_ACCESS_REPORT messages received
	// before that point are dropped, not buffered (spec.md §4.6,
	// §9 "Design Notes").
	rospecStarted bool

	// lastError records the most recent non-fatal error surfaced on the
	// session, for inclusion in Error events.
	lastError error
}

// NewSession creates a Session with its message ID counter at 1
// (spec.md §4.6: "starts at 1").
func NewSession() *Session {
	return &Session{
		messageID:         1,
		antennaPowerIndex: make(map[uint16]uint16),
	}
}

// NextMessageID returns the next outbound message ID and advances the
// counter. Wraparound past 2^32-1 back to 0 is permitted and requires
// no special handling (spec.md §4.6).
func (s *Session) NextMessageID() uint32 {
	return atomic.AddUint32(&s.messageID, 1) - 1
}

// PowerTable returns the capabilities-derived power table, sorted
// ascending by DBm.
func (s *Session) PowerTable() []PowerTableEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.powerTable
}

// SetPowerTable records the power table parsed from capabilities.
func (s *Session) SetPowerTable(table []PowerTableEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerTable = table
}

// HopTableIDs returns the hop table IDs parsed from capabilities.
func (s *Session) HopTableIDs() []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hopTableIDs
}

// SetHopTableIDs records the hop table IDs parsed from capabilities.
func (s *Session) SetHopTableIDs(ids []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hopTableIDs = ids
}

// HopTableID returns the hop table ID to use when building an ROSpec:
// the first advertised ID, or fallbackHopTableID if capabilities
// advertised none (spec.md §3, §4.6).
func (s *Session) HopTableID() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.hopTableIDs) == 0 {
		return fallbackHopTableID
	}
	return s.hopTableIDs[0]
}

// AntennaPowerIndex returns the cached power table index for an
// antenna, if one has been computed.
func (s *Session) AntennaPowerIndex(antenna uint16) (uint16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.antennaPowerIndex[antenna]
	return idx, ok
}

// SetAntennaPowerIndex caches the power table index chosen for an
// antenna.
func (s *Session) SetAntennaPowerIndex(antenna, index uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.antennaPowerIndex[antenna] = index
}

// RospecStarted reports whether START_ROSPEC_RESPONSE has confirmed the
// ROSpec is running.
func (s *Session) RospecStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rospecStarted
}

// SetRospecStarted updates the started flag.
func (s *Session) SetRospecStarted(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rospecStarted = v
}

// LastError returns the most recently recorded non-fatal error.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetLastError records a non-fatal error for surfacing on an Error
// event.
func (s *Session) SetLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
}

// Reset clears all learned capabilities and flags and restarts the
// message ID counter at 1. The controller calls this before every
// reconnect attempt (spec.md §5): a fresh TCP connection means a fresh
// GET_READER_CAPABILITIES round trip, so stale power tables and hop IDs
// must not survive.
func (s *Session) Reset() {
	atomic.StoreUint32(&s.messageID, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerTable = nil
	s.hopTableIDs = nil
	s.antennaPowerIndex = make(map[uint16]uint16)
	s.rospecStarted = false
	s.lastError = nil
}
