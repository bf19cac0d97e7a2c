package llrpclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Conn wraps a TCP connection with buffered I/O and incremental LLRP
// frame decoding. Writes are serialized; reads are not meant to be
// called concurrently (the session controller owns a single read
// loop, spec.md §4.6).
type Conn struct {
	raw     net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	mu      sync.Mutex // protects writes
	decoder frameDecoder

	readBuf [4096]byte
}

// NewConn wraps an already-established net.Conn.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		raw:    c,
		reader: bufio.NewReader(c),
		writer: bufio.NewWriter(c),
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// SetDeadline sets the read and write deadline.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}

// SetReadDeadline sets the read deadline.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.raw.SetWriteDeadline(t)
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.raw.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// ReadFrame reads and returns the next complete LLRP frame, reading
// further bytes off the socket as needed (spec.md §4.1 "Inbound").
func (c *Conn) ReadFrame() (*Frame, error) {
	for {
		f, err, ok := c.decoder.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			return f, nil
		}
		n, err := c.reader.Read(c.readBuf[:])
		if n > 0 {
			c.decoder.Feed(c.readBuf[:n])
		}
		if err != nil {
			return nil, wrapError(KindSocketError, "read", err)
		}
	}
}

// WriteFrame encodes and writes a complete LLRP frame.
func (c *Conn) WriteFrame(msgType uint16, id uint32, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := EncodeFrame(msgType, id, payload)
	if _, err := c.writer.Write(buf); err != nil {
		return wrapError(KindSocketError, "write", err)
	}
	return c.writer.Flush()
}

// ReadWithTimeout reads the next frame, applying a read deadline if
// timeout > 0.
func (c *Conn) ReadWithTimeout(timeout time.Duration) (*Frame, error) {
	if timeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer c.SetReadDeadline(time.Time{})
	}
	return c.ReadFrame()
}

// ExpectFrame reads the next frame and verifies its type matches
// expectedType. An ERROR_MESSAGE frame is surfaced as KindUnexpectedMessage
// regardless of what was expected (spec.md §4.6: any unsolicited
// ERROR_MESSAGE aborts the current handshake step).
func (c *Conn) ExpectFrame(expectedType uint16, timeout time.Duration) (*Frame, error) {
	f, err := c.ReadWithTimeout(timeout)
	if err != nil {
		return nil, err
	}
	if f.Header.Type == MsgErrorMessage {
		return nil, newError(KindUnexpectedMessage, "received ERROR_MESSAGE")
	}
	if f.Header.Type != expectedType {
		return nil, newError(KindUnexpectedMessage,
			fmt.Sprintf("expected %s, got %s", MsgTypeName(expectedType), MsgTypeName(f.Header.Type)))
	}
	return f, nil
}

// DialConn connects to an LLRP reader at address, adding DefaultPort if
// address carries no port.
func DialConn(address string) (*Conn, error) {
	return DialContext(context.Background(), address)
}

// DialContext connects to an LLRP reader using ctx for cancellation/
// deadline.
func DialContext(ctx context.Context, address string) (*Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host = address
		port = fmt.Sprintf("%d", DefaultPort)
	}
	address = net.JoinHostPort(host, port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, wrapError(KindSocketError, fmt.Sprintf("dial %s", address), err)
	}

	return NewConn(conn), nil
}
