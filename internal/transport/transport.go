package transport

import "errors"

var ErrClosed = errors.New("transport: connection closed")

// Message is a payload received on a subscribed topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Conn is a best-effort publish/subscribe connection to a broker. Messages
// for a subscription are delivered in arrival order on the returned
// channel, which is closed when the connection is closed.
type Conn interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan Message, error)
	Close() error
}

const inboxSize = 1024
