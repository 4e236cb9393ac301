package transport

import (
	"sync"
	"sync/atomic"
)

// Loopback is an in-process broker with exact topic matching. Delivery is
// best effort: a message is dropped for a subscriber whose inbox is full.
type Loopback struct {
	mu      sync.RWMutex
	subs    map[string]map[*loopbackSub]struct{}
	dropped atomic.Uint64
}

type loopbackSub struct {
	ch chan Message
}

func NewLoopback() *Loopback {
	return &Loopback{
		subs: make(map[string]map[*loopbackSub]struct{}),
	}
}

// Conn opens a new client connection to the broker.
func (l *Loopback) Conn() Conn {
	return &loopbackConn{broker: l}
}

// Dropped is the number of messages discarded because an inbox was full.
func (l *Loopback) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *Loopback) publish(topic string, payload []byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for s := range l.subs[topic] {
		msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
		select {
		case s.ch <- msg:
		default:
			l.dropped.Add(1)
		}
	}
}

func (l *Loopback) subscribe(topic string) *loopbackSub {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &loopbackSub{ch: make(chan Message, inboxSize)}
	if l.subs[topic] == nil {
		l.subs[topic] = make(map[*loopbackSub]struct{})
	}
	l.subs[topic][s] = struct{}{}
	return s
}

func (l *Loopback) unsubscribe(topic string, s *loopbackSub) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.subs[topic], s)
	if len(l.subs[topic]) == 0 {
		delete(l.subs, topic)
	}
	close(s.ch)
}

type loopbackConn struct {
	broker *Loopback

	mu     sync.Mutex
	closed bool
	subs   map[*loopbackSub]string
}

func (c *loopbackConn) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.broker.publish(topic, payload)
	return nil
}

func (c *loopbackConn) Subscribe(topic string) (<-chan Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.subs == nil {
		c.subs = make(map[*loopbackSub]string)
	}

	s := c.broker.subscribe(topic)
	c.subs[s] = topic
	return s.ch, nil
}

func (c *loopbackConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for s, topic := range c.subs {
		c.broker.unsubscribe(topic, s)
	}
	c.subs = nil
	return nil
}
