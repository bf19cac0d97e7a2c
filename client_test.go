package llrpclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	server, clientSide := net.Pipe()
	t.Cleanup(func() { server.Close() })

	c := NewClient(&SessionConfig{
		Antennas:       []uint16{1},
		ConnectTimeout: time.Second,
	})
	c.conn = NewConn(clientSide)
	return c, server
}

func writeFrame(t *testing.T, conn net.Conn, msgType uint16, id uint32, payload []byte) {
	t.Helper()
	_, err := conn.Write(EncodeFrame(msgType, id, payload))
	require.NoError(t, err)
}

func TestClient_AwaitResponse_DropsReportsBeforeRospecStarted(t *testing.T) {
	c, server := newPipeClient(t)

	record := buildTagReportData(
		epc96TV([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}),
		EncodeTV(TVAntennaID, u16b(1)),
		EncodeTV(TVLastSeenTimestampUTC, u64b(1)),
	)

	go func() {
		writeFrame(t, server, MsgROAccessReport, 1, buildROAccessReport(record))
		writeFrame(t, server, MsgAddROSpecResponse, 2, nil)
	}()

	f, err := c.awaitResponse(MsgAddROSpecResponse)
	require.NoError(t, err)
	assert.Equal(t, MsgAddROSpecResponse, f.Header.Type)

	select {
	case ev := <-c.events:
		t.Fatalf("expected the pre-start RO_ACCESS_REPORT to be dropped, got %+v", ev)
	default:
	}
}

func TestClient_AwaitResponse_AcksKeepalive(t *testing.T) {
	c, server := newPipeClient(t)

	go func() {
		writeFrame(t, server, MsgKeepalive, 1, nil)
		writeFrame(t, server, MsgEnableROSpecResponse, 2, nil)
	}()

	ackCh := make(chan struct{})
	go func() {
		buf := make([]byte, FrameHeaderSize)
		_, err := readFull(server, buf)
		if err == nil {
			close(ackCh)
		}
	}()

	f, err := c.awaitResponse(MsgEnableROSpecResponse)
	require.NoError(t, err)
	assert.Equal(t, MsgEnableROSpecResponse, f.Header.Type)

	select {
	case <-ackCh:
	case <-time.After(time.Second):
		t.Fatal("expected a KEEPALIVE_ACK to be written back")
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestClient_AwaitResponse_IgnoresReaderEventNotification(t *testing.T) {
	c, server := newPipeClient(t)

	go func() {
		writeFrame(t, server, MsgReaderEventNotification, 1, []byte{0xAA})
		writeFrame(t, server, MsgStartROSpecResponse, 2, nil)
	}()

	f, err := c.awaitResponse(MsgStartROSpecResponse)
	require.NoError(t, err)
	assert.Equal(t, MsgStartROSpecResponse, f.Header.Type)
}

func TestClient_AwaitResponse_ErrorsOnErrorMessage(t *testing.T) {
	c, server := newPipeClient(t)

	go func() {
		writeFrame(t, server, MsgErrorMessage, 1, nil)
	}()

	_, err := c.awaitResponse(MsgAddROSpecResponse)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnexpectedMessage))
}

func TestClient_AwaitResponse_ErrorsOnUnexpectedType(t *testing.T) {
	c, server := newPipeClient(t)

	go func() {
		writeFrame(t, server, MsgDeleteROSpecResponse, 1, nil)
	}()

	_, err := c.awaitResponse(MsgAddROSpecResponse)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnexpectedMessage))
}

func TestClient_CheckStatus_ZeroCodeIsNil(t *testing.T) {
	c := NewClient(nil)
	payload := encodeLLRPStatus(0, "")
	assert.NoError(t, c.checkStatus(payload))
}

func TestClient_CheckStatus_NonZeroCodeReturnsLLRPStatusError(t *testing.T) {
	c := NewClient(nil)
	payload := encodeLLRPStatus(101, "bad field")
	err := c.checkStatus(payload)
	require.Error(t, err)
	var statusErr *LLRPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, uint16(101), statusErr.Code)
}

func TestClient_CheckStatus_MissingStatusIsNil(t *testing.T) {
	c := NewClient(nil)
	assert.NoError(t, c.checkStatus(nil))
}

func TestClient_HandleTagReportPayload_EmitsEventTag(t *testing.T) {
	c := NewClient(&SessionConfig{Antennas: []uint16{1}, EventChannelCapacity: 4})

	record := buildTagReportData(
		epc96TV([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}),
		EncodeTV(TVLastSeenTimestampUTC, u64b(1)),
	)
	c.handleTagReportPayload(buildROAccessReport(record))

	select {
	case ev := <-c.events:
		require.Equal(t, EventTag, ev.Kind)
		require.NotNil(t, ev.Tag)
		require.NotNil(t, ev.Tag.Antenna) // synthesized: sole antenna
		assert.Equal(t, uint16(1), *ev.Tag.Antenna)
	default:
		t.Fatal("expected a buffered EventTag")
	}
}

func TestClient_Emit_DropsWhenChannelFull(t *testing.T) {
	c := NewClient(&SessionConfig{EventChannelCapacity: 1})
	c.emit(Event{Kind: EventConnected})
	c.emit(Event{Kind: EventReady}) // channel full, dropped silently

	ev := <-c.events
	assert.Equal(t, EventConnected, ev.Kind)
	select {
	case <-c.events:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestClient_Dispatch_KeepaliveAcksAndContinues(t *testing.T) {
	c, server := newPipeClient(t)

	ackCh := make(chan struct{})
	go func() {
		buf := make([]byte, FrameHeaderSize)
		if _, err := readFull(server, buf); err == nil {
			close(ackCh)
		}
	}()

	err := c.dispatch(&Frame{Header: FrameHeader{Type: MsgKeepalive, ID: 5}})
	require.NoError(t, err)

	select {
	case <-ackCh:
	case <-time.After(time.Second):
		t.Fatal("expected KEEPALIVE_ACK to be written")
	}
}

func TestClient_Dispatch_ErrorMessageAbortsServe(t *testing.T) {
	c := NewClient(nil)
	err := c.dispatch(&Frame{Header: FrameHeader{Type: MsgErrorMessage}})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnexpectedMessage))
}

// fakeReaderServer is a minimal in-process LLRP reader that drives one full
// handshake over a real TCP loopback connection, used to exercise
// Client.connectAndServe end to end without a physical FX9600.
func fakeReaderServer(t *testing.T, ln net.Listener, hopTableID uint16) {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() *Frame {
		var dec frameDecoder
		buf := make([]byte, 4096)
		for {
			if f, err, ok := dec.Next(); err == nil && ok {
				return f
			}
			n, err := conn.Read(buf)
			if n > 0 {
				dec.Feed(buf[:n])
			}
			if err != nil {
				return nil
			}
		}
	}
	write := func(msgType uint16, id uint32, payload []byte) {
		_, _ = conn.Write(EncodeFrame(msgType, id, payload))
	}

	// ENABLE_EVENTS_AND_REPORTS: no response expected.
	req := readFrame()
	require.NotNil(t, req)
	require.Equal(t, MsgEnableEventsAndReports, req.Header.Type)

	// GET_READER_CAPABILITIES
	req = readFrame()
	require.NotNil(t, req)
	require.Equal(t, MsgGetReaderCapabilities, req.Header.Type)
	capsPayload := buildCapabilitiesPayload(0, [][]byte{encodePowerEntry(0, 30.0)}, [][]byte{encodeHopTable(hopTableID)})
	write(MsgGetReaderCapabilitiesResponse, req.Header.ID, capsPayload)

	req = readFrame()
	require.Equal(t, MsgDeleteROSpec, req.Header.Type)
	write(MsgDeleteROSpecResponse, req.Header.ID, encodeLLRPStatus(0, ""))

	req = readFrame()
	require.Equal(t, MsgAddROSpec, req.Header.Type)
	write(MsgAddROSpecResponse, req.Header.ID, encodeLLRPStatus(0, ""))

	req = readFrame()
	require.Equal(t, MsgEnableROSpec, req.Header.Type)
	write(MsgEnableROSpecResponse, req.Header.ID, encodeLLRPStatus(0, ""))

	req = readFrame()
	require.Equal(t, MsgStartROSpec, req.Header.Type)
	write(MsgStartROSpecResponse, req.Header.ID, encodeLLRPStatus(0, ""))

	record := buildTagReportData(
		epc96TV([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}),
		EncodeTV(TVAntennaID, u16b(1)),
		EncodeTV(TVLastSeenTimestampUTC, u64b(99)),
	)
	write(MsgROAccessReport, 100, buildROAccessReport(record))

	// Hold the connection open until the client closes it, so the
	// session is not reset before the test inspects it.
	readFrame()
}

func TestClient_ConnectAndServe_FullHandshakeOverLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go fakeReaderServer(t, ln, 3)

	c := NewClient(&SessionConfig{
		Address:        ln.Addr().String(),
		Antennas:       []uint16{1},
		PowerDBm:       map[uint16]float32{1: 30},
		ConnectTimeout: 2 * time.Second,
	})

	require.NoError(t, c.Connect(context.Background()))

	wantKinds := []EventKind{EventConnected, EventReady, EventTag}
	for _, want := range wantKinds {
		select {
		case ev := <-c.Events():
			require.Equal(t, want, ev.Kind, "event: %+v", ev)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for event kind %v", want)
		}
	}

	assert.Equal(t, uint16(3), c.session.HopTableID())
	require.NoError(t, c.Disconnect())
}

func TestClient_Run_SuppressesReconnectWhenDisabled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing is listening: every dial attempt fails

	c := NewClient(&SessionConfig{
		Address:             addr,
		Antennas:            []uint16{1},
		ConnectTimeout:      100 * time.Millisecond,
		ReconnectMinBackoff: 10 * time.Millisecond,
		ReconnectMaxBackoff: 10 * time.Millisecond,
		EnableReconnect:     false,
	})

	require.NoError(t, c.Connect(context.Background()))

	select {
	case ev := <-c.Events():
		assert.Equal(t, EventError, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an EventError from the failed dial")
	}

	select {
	case ev := <-c.Events():
		assert.Equal(t, EventDisconnected, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an EventDisconnected from the failed dial")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run() should have returned after one attempt with EnableReconnect false")
	}
}
