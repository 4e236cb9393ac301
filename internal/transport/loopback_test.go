package transport

import (
	"testing"
	"time"
)

func TestLoopback_PublishSubscribe(t *testing.T) {
	broker := NewLoopback()
	pub := broker.Conn()
	sub := broker.Conn()
	defer pub.Close()
	defer sub.Close()

	ch, err := sub.Subscribe("artc/status_update/ZW")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := pub.Publish("artc/status_update/CU", []byte("other")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Publish("artc/status_update/ZW", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-ch:
		if string(msg.Payload) != "hello" {
			t.Errorf("Expected payload hello, got %s", msg.Payload)
		}
		if msg.Topic != "artc/status_update/ZW" {
			t.Errorf("Unexpected topic %s", msg.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected message to be delivered")
	}

	select {
	case msg := <-ch:
		t.Errorf("Expected no cross-talk, got %s", msg.Payload)
	default:
	}
}

func TestLoopback_CloseEndsSubscription(t *testing.T) {
	broker := NewLoopback()
	sub := broker.Conn()

	ch, err := sub.Subscribe("t")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, ok := <-ch; ok {
		t.Error("Expected subscription channel to be closed")
	}
	if err := sub.Publish("t", nil); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := sub.Subscribe("t"); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	// publishing to a topic without subscribers is not an error
	if err := broker.Conn().Publish("t", []byte("x")); err != nil {
		t.Errorf("Expected publish without subscribers to succeed, got %v", err)
	}
}

func TestLoopback_DropsWhenInboxFull(t *testing.T) {
	broker := NewLoopback()
	sub := broker.Conn()
	defer sub.Close()

	if _, err := sub.Subscribe("t"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := broker.Conn()
	for i := 0; i < inboxSize+10; i++ {
		_ = pub.Publish("t", []byte("x"))
	}

	if broker.Dropped() != 10 {
		t.Errorf("Expected 10 dropped messages, got %d", broker.Dropped())
	}
}
