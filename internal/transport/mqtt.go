package transport

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type MQTTConfig struct {
	BrokerURL      string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// MQTT is a Conn backed by a paho client. Paho invokes handlers on its own
// network goroutine; they only hand messages over to subscription channels.
type MQTT struct {
	cfg    MQTTConfig
	log    *zap.Logger
	client mqtt.Client

	mu     sync.Mutex
	sendMu sync.RWMutex
	closed bool
	done   chan struct{}
	subs   []chan Message
	topics []string
}

func DialMQTT(cfg MQTTConfig, log *zap.Logger) (*MQTT, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	m := &MQTT{
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOrderMatters(true)
	opts.OnConnect = func(c mqtt.Client) {
		log.Info("Connected to MQTT broker", zap.String("broker", cfg.BrokerURL), zap.String("client_id", cfg.ClientID))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Warn("Connection to MQTT broker lost", zap.Error(err))
	}

	m.client = mqtt.NewClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", cfg.BrokerURL, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.BrokerURL, err)
	}

	return m, nil
}

func (m *MQTT) Publish(topic string, payload []byte) error {
	if m.isClosed() {
		return ErrClosed
	}

	token := m.client.Publish(topic, m.cfg.QoS, false, payload)
	if !token.WaitTimeout(m.cfg.PublishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, m.cfg.PublishTimeout)
	}
	return token.Error()
}

func (m *MQTT) Subscribe(topic string) (<-chan Message, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Message, inboxSize)
	m.subs = append(m.subs, ch)
	m.topics = append(m.topics, topic)
	m.mu.Unlock()

	token := m.client.Subscribe(topic, m.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.sendMu.RLock()
		defer m.sendMu.RUnlock()

		if m.isClosed() {
			return
		}
		select {
		case ch <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
		case <-m.done:
		}
	})
	if !token.WaitTimeout(m.cfg.ConnectTimeout) {
		return nil, fmt.Errorf("subscribe to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	return ch, nil
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	topics := m.topics
	m.mu.Unlock()

	if len(topics) > 0 {
		m.client.Unsubscribe(topics...).WaitTimeout(time.Second)
	}
	m.client.Disconnect(250)

	// in-flight handlers observe done and release the read lock
	m.sendMu.Lock()
	m.mu.Lock()
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
	m.mu.Unlock()
	m.sendMu.Unlock()

	return nil
}

func (m *MQTT) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
