package llrpclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZMQPublisher_PublishDoesNotBlockWithoutSubscriber(t *testing.T) {
	pub, err := NewZMQPublisher("tcp://127.0.0.1:*")
	require.NoError(t, err)
	defer pub.Close()

	antenna := uint16(1)
	rssi := int8(-40)
	seenCount := uint16(1)
	lastSeen := uint64(1)
	obs := &Observation{EPC: "aabbcc", Antenna: &antenna, RSSI: &rssi, SeenCount: &seenCount, LastSeenUTCMicros: &lastSeen}
	// A PUB socket with no subscriber still accepts the send; DONTWAIT
	// guarantees this never stalls the caller even if it didn't.
	require.NoError(t, pub.Publish(obs))
}

func TestZMQPublisher_CloseSucceeds(t *testing.T) {
	pub, err := NewZMQPublisher("tcp://127.0.0.1:*")
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}
