package llrpclient

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is a step of the connection lifecycle (spec.md §4.6).
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingCapabilities
	StateAwaitingDeleteAck
	StateAwaitingAddAck
	StateAwaitingEnableAck
	StateAwaitingStartAck
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateAwaitingCapabilities:
		return "AwaitingCapabilities"
	case StateAwaitingDeleteAck:
		return "AwaitingDeleteAck"
	case StateAwaitingAddAck:
		return "AwaitingAddAck"
	case StateAwaitingEnableAck:
		return "AwaitingEnableAck"
	case StateAwaitingStartAck:
		return "AwaitingStartAck"
	case StateRunning:
		return "Running"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// EventKind tags an Event delivered on Client.Events() (spec.md §4.6).
type EventKind uint8

const (
	EventConnected EventKind = iota
	EventReady
	EventTag
	EventDisconnected
	EventError
)

// Event is the single value type carried on the Events() channel.
type Event struct {
	Kind EventKind
	Tag  *Observation
	Err  error
}

// SessionConfig configures a Client (spec.md §3, ambient config layer).
type SessionConfig struct {
	// Address is host:port of the FX9600; if the port is omitted,
	// DefaultPort is used.
	Address string

	// Antennas lists the antenna ports to enable.
	Antennas []uint16
	// PowerDBm maps antenna port to requested transmit power. Antennas
	// missing from this map use defaultPowerDBm.
	PowerDBm map[uint16]float32

	// ConnectTimeout bounds every handshake step's read (spec.md §5);
	// defaults to 30s.
	ConnectTimeout time.Duration

	// ReconnectMinBackoff/ReconnectMaxBackoff bound the exponential
	// backoff between reconnect attempts.
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	// EnableReconnect gates the reconnect-with-backoff loop (spec.md
	// §4.6 "Reconnect"): the loop is suppressed while this is false, so
	// a session ends for good on the first failure instead of retrying.
	EnableReconnect bool

	// EventBus, if non-nil, receives every decoded Observation in
	// addition to the Events() channel (SPEC_FULL.md §6.3).
	EventBus *ZMQPublisher

	// Logger, if nil, defaults to logrus.StandardLogger().
	Logger *logrus.Logger

	// EventChannelCapacity sizes the Events() channel buffer.
	EventChannelCapacity int
}

// DefaultSessionConfig returns a SessionConfig with spec.md §5's
// defaults filled in.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ConnectTimeout:       30 * time.Second,
		ReconnectMinBackoff:  1 * time.Second,
		ReconnectMaxBackoff:  30 * time.Second,
		EnableReconnect:      true,
		EventChannelCapacity: 64,
	}
}

// Client drives one FX9600's connection lifecycle: dial, handshake,
// ROSpec lifecycle, tag-report dispatch, and reconnect-with-backoff on
// failure (spec.md §4.6, §5).
type Client struct {
	cfgMu  sync.RWMutex
	config *SessionConfig

	session *Session
	log     *logrus.Entry

	conn *Conn

	stateMu sync.RWMutex
	state   State

	events chan Event

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a Client, not yet connected. config may be nil to
// use DefaultSessionConfig().
func NewClient(config *SessionConfig) *Client {
	if config == nil {
		config = DefaultSessionConfig()
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.ReconnectMinBackoff == 0 {
		config.ReconnectMinBackoff = 1 * time.Second
	}
	if config.ReconnectMaxBackoff == 0 {
		config.ReconnectMaxBackoff = 30 * time.Second
	}
	if config.EventChannelCapacity == 0 {
		config.EventChannelCapacity = 64
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		config:  config,
		session: NewSession(),
		log:     logger.WithField("component", "llrpclient"),
		events:  make(chan Event, config.EventChannelCapacity),
	}
}

// Events returns the channel of lifecycle and tag events.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	c.log.WithField("state", s).Debug("state transition")
}

// Connect starts the connect-and-serve loop in the background. It
// returns immediately; connection progress is reported on Events().
func (c *Client) Connect(ctx context.Context) error {
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Disconnect stops the client and waits for the background loop to
// exit. It returns ErrNotConnected before Connect and ErrClosed when
// called again after an earlier Disconnect.
func (c *Client) Disconnect() error {
	if c.stopCh == nil {
		return ErrNotConnected
	}
	select {
	case <-c.stopCh:
		return ErrClosed
	default:
	}
	c.setState(StateShuttingDown)
	close(c.stopCh)
	c.closeConn()
	c.wg.Wait()
	c.setState(StateDisconnected)
	return nil
}

// Reconfigure updates the antenna set and power levels. The change
// takes effect on the next reconnect cycle, which this method triggers
// immediately by closing the current connection; with EnableReconnect
// false, closing the connection ends the session instead (spec.md §4.6: a
// configuration change is not distinguished from any other
// disconnect — the full handshake re-runs with the new ROSpec).
func (c *Client) Reconfigure(antennas []uint16, powerDBm map[uint16]float32) error {
	c.cfgMu.Lock()
	c.config.Antennas = antennas
	c.config.PowerDBm = powerDBm
	c.cfgMu.Unlock()
	c.closeConn()
	return nil
}

func (c *Client) closeConn() {
	c.cfgMu.Lock()
	conn := c.conn
	c.cfgMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) antennas() []uint16 {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.config.Antennas
}

func (c *Client) powerDBm() map[uint16]float32 {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.config.PowerDBm
}

func (c *Client) address() string {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.config.Address
}

func (c *Client) connectTimeout() time.Duration {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.config.ConnectTimeout
}

// run is the reconnect-with-backoff loop (spec.md §5, §4.6): it repeats
// connectAndServe until Disconnect is called, backing off
// exponentially between attempts. The loop is suppressed while
// EnableReconnect is false — connectAndServe then runs exactly once.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.config.ReconnectMinBackoff
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		err := c.connectAndServe(ctx)

		c.cfgMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.cfgMu.Unlock()
		c.session.Reset()

		if err != nil {
			c.log.WithError(err).Warn("session ended")
			c.emit(Event{Kind: EventError, Err: err})
		}
		c.emit(Event{Kind: EventDisconnected, Err: err})

		if !c.config.EnableReconnect {
			return
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.config.ReconnectMaxBackoff {
			backoff = c.config.ReconnectMaxBackoff
		}
	}
}

// connectAndServe runs one full lifecycle: dial, handshake, then serve
// until the connection fails or Disconnect is called.
func (c *Client) connectAndServe(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := DialContext(ctx, c.address())
	if err != nil {
		return err
	}
	c.cfgMu.Lock()
	c.conn = conn
	c.cfgMu.Unlock()

	if err := c.sendEnableEventsAndReports(); err != nil {
		return errors.Wrap(err, "enable events and reports")
	}

	// spec.md §4.6: wait 100ms after ENABLE_EVENTS_AND_REPORTS before
	// the capabilities request — the reader's control channel is not
	// immediately ready.
	time.Sleep(100 * time.Millisecond)

	c.setState(StateAwaitingCapabilities)
	caps, err := c.fetchCapabilities()
	if err != nil {
		return errors.Wrap(err, "fetch capabilities")
	}
	c.session.SetPowerTable(caps.PowerTable)
	c.session.SetHopTableIDs(caps.HopTableIDs)
	powerDBm := c.powerDBm()
	for _, a := range c.antennas() {
		dbm, ok := powerDBm[a]
		if !ok {
			dbm = defaultPowerDBm
		}
		c.session.SetAntennaPowerIndex(a, PowerIndexForDBm(dbm, caps.PowerTable))
	}

	c.setState(StateAwaitingDeleteAck)
	if err := c.deleteROSpec(); err != nil {
		return errors.Wrap(err, "delete rospec")
	}

	c.setState(StateAwaitingAddAck)
	if err := c.addROSpec(); err != nil {
		return errors.Wrap(err, "add rospec")
	}

	c.setState(StateAwaitingEnableAck)
	if err := c.enableROSpec(); err != nil {
		return errors.Wrap(err, "enable rospec")
	}

	c.setState(StateAwaitingStartAck)
	if err := c.startROSpec(); err != nil {
		return errors.Wrap(err, "start rospec")
	}

	c.session.SetRospecStarted(true)
	c.setState(StateRunning)
	c.emit(Event{Kind: EventConnected})
	c.emit(Event{Kind: EventReady})

	return c.serve()
}

// awaitResponse reads frames until one of type expected arrives,
// dropping RO_ACCESS_REPORT (the buffered-tag guard, spec.md §4.6:
// any report arriving before rospec_started MUST be dropped),
// acking KEEPALIVE immediately, and ignoring READER_EVENT_NOTIFICATION
// (spec.md §9 OQ4) interleaved during the handshake.
func (c *Client) awaitResponse(expected uint16) (*Frame, error) {
	timeout := c.connectTimeout()
	for {
		f, err := c.conn.ReadWithTimeout(timeout)
		if err != nil {
			return nil, err
		}
		switch f.Header.Type {
		case expected:
			return f, nil
		case MsgROAccessReport:
			c.log.Debug("dropping RO_ACCESS_REPORT received before rospec_started")
		case MsgKeepalive:
			if err := c.conn.WriteFrame(MsgKeepaliveAck, c.session.NextMessageID(), nil); err != nil {
				return nil, err
			}
		case MsgReaderEventNotification:
			// no-op ack: never drives a state transition.
		case MsgErrorMessage:
			return nil, newError(KindUnexpectedMessage, "received ERROR_MESSAGE")
		default:
			return nil, newError(KindUnexpectedMessage,
				"expected "+MsgTypeName(expected)+", got "+MsgTypeName(f.Header.Type))
		}
	}
}

func (c *Client) checkStatus(payload []byte) error {
	params, err := decodeStrict(payload, 0, len(payload))
	if err != nil {
		return wrapError(KindLlrpStatus, "decoding status parameters", err)
	}
	status, ok := findParam(params, ParamLLRPStatus)
	if !ok {
		return nil
	}
	return parseLLRPStatus(status)
}

func (c *Client) fetchCapabilities() (*Capabilities, error) {
	id := c.session.NextMessageID()
	if err := c.conn.WriteFrame(MsgGetReaderCapabilities, id, []byte{0}); err != nil {
		return nil, err
	}
	f, err := c.awaitResponse(MsgGetReaderCapabilitiesResponse)
	if err != nil {
		return nil, err
	}
	return ParseCapabilities(f.Payload)
}

// sendEnableEventsAndReports tells the reader to start delivering
// READER_EVENT_NOTIFICATION and RO_ACCESS_REPORT messages. The reader
// sends no response to this message.
func (c *Client) sendEnableEventsAndReports() error {
	return c.conn.WriteFrame(MsgEnableEventsAndReports, c.session.NextMessageID(), nil)
}

func (c *Client) deleteROSpec() error {
	payload := make([]byte, 4) // ROSpecID 0 means "delete all"
	id := c.session.NextMessageID()
	if err := c.conn.WriteFrame(MsgDeleteROSpec, id, payload); err != nil {
		return err
	}
	f, err := c.awaitResponse(MsgDeleteROSpecResponse)
	if err != nil {
		return err
	}
	return c.checkStatus(f.Payload)
}

func (c *Client) addROSpec() error {
	hopTableID := c.session.HopTableID()
	powerTable := c.session.PowerTable()
	payload := BuildROSpec(c.antennas(), c.powerDBm(), powerTable, hopTableID)

	id := c.session.NextMessageID()
	if err := c.conn.WriteFrame(MsgAddROSpec, id, payload); err != nil {
		return err
	}
	f, err := c.awaitResponse(MsgAddROSpecResponse)
	if err != nil {
		return err
	}
	return c.checkStatus(f.Payload)
}

func (c *Client) enableROSpec() error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, defaultROSpecID)
	id := c.session.NextMessageID()
	if err := c.conn.WriteFrame(MsgEnableROSpec, id, payload); err != nil {
		return err
	}
	f, err := c.awaitResponse(MsgEnableROSpecResponse)
	if err != nil {
		return err
	}
	return c.checkStatus(f.Payload)
}

func (c *Client) startROSpec() error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, defaultROSpecID)
	id := c.session.NextMessageID()
	if err := c.conn.WriteFrame(MsgStartROSpec, id, payload); err != nil {
		return err
	}
	f, err := c.awaitResponse(MsgStartROSpecResponse)
	if err != nil {
		return err
	}
	return c.checkStatus(f.Payload)
}

// serve is the steady-state read loop: dispatch RO_ACCESS_REPORT,
// KEEPALIVE, and READER_EVENT_NOTIFICATION until the connection fails
// or CLOSE_CONNECTION is sent for shutdown.
func (c *Client) serve() error {
	for {
		select {
		case <-c.stopCh:
			c.conn.WriteFrame(MsgCloseConnection, c.session.NextMessageID(), nil)
			return nil
		default:
		}

		f, err := c.conn.ReadFrame()
		if err != nil {
			return err
		}
		if err := c.dispatch(f); err != nil {
			return err
		}
	}
}

func (c *Client) dispatch(f *Frame) error {
	switch f.Header.Type {
	case MsgROAccessReport:
		c.handleTagReportPayload(f.Payload)
		return nil
	case MsgKeepalive:
		return c.conn.WriteFrame(MsgKeepaliveAck, c.session.NextMessageID(), nil)
	case MsgReaderEventNotification:
		c.log.Debug("reader event notification")
		return nil
	case MsgErrorMessage:
		return newError(KindUnexpectedMessage, "ERROR_MESSAGE while running")
	default:
		c.log.WithField("type", MsgTypeName(f.Header.Type)).Debug("unhandled message while running")
		return nil
	}
}

func (c *Client) handleTagReportPayload(payload []byte) {
	var soleAntenna uint16
	var soleKnown bool
	if antennas := c.antennas(); len(antennas) == 1 {
		soleAntenna, soleKnown = antennas[0], true
	}

	observations, err := ParseTagReport(payload, soleAntenna, soleKnown)
	if err != nil {
		c.session.SetLastError(err)
		c.log.WithError(err).Warn("dropping malformed RO_ACCESS_REPORT")
		c.emit(Event{Kind: EventError, Err: err})
		return
	}

	for i := range observations {
		obs := observations[i]
		if c.config.EventBus != nil {
			if err := c.config.EventBus.Publish(&obs); err != nil {
				c.log.WithError(err).Debug("event bus publish failed")
			}
		}
		c.emit(Event{Kind: EventTag, Tag: &obs})
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event channel full, dropping event")
	}
}
