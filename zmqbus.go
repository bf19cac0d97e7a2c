package llrpclient

import (
	"encoding/json"

	zmq "github.com/pebbe/zmq4"
)

// tagEventTopic is the ZeroMQ PUB topic every Observation is published
// under (SPEC_FULL.md §6.3), mirroring the EdgeX device-service-to-app
// event bus boundary this system's domain pack models.
const tagEventTopic = "fx9600.tag"

// ZMQPublisher is an optional sink that republishes decoded
// Observations on a ZeroMQ PUB socket. A Client with a nil EventBus
// never touches libzmq; this is strictly opt-in (SPEC_FULL.md §6.3).
type ZMQPublisher struct {
	socket *zmq.Socket
}

// NewZMQPublisher binds a PUB socket at endpoint (e.g.
// "tcp://*:5563").
func NewZMQPublisher(endpoint string) (*ZMQPublisher, error) {
	socket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, wrapError(KindSocketError, "create zmq PUB socket", err)
	}
	if err := socket.Bind(endpoint); err != nil {
		socket.Close()
		return nil, wrapError(KindSocketError, "bind zmq PUB socket", err)
	}
	return &ZMQPublisher{socket: socket}, nil
}

// Publish sends obs as a JSON-encoded multipart message (topic frame,
// body frame) without blocking the caller — zmq.DONTWAIT returns
// immediately if the socket's outbound queue is full, dropping the
// message rather than stalling the session's tag-report dispatch.
func (p *ZMQPublisher) Publish(obs *Observation) error {
	body, err := json.Marshal(obs)
	if err != nil {
		return err
	}
	if _, err := p.socket.SendMessage(tagEventTopic, body, zmq.DONTWAIT); err != nil {
		return wrapError(KindSocketError, "zmq publish", err)
	}
	return nil
}

// Close releases the underlying socket.
func (p *ZMQPublisher) Close() error {
	return p.socket.Close()
}
