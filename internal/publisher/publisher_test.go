package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/control"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/message"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/transport"
	"go.uber.org/zap"
)

func testRun(policy config.Policy, interval, timeout time.Duration) config.Run {
	return config.Run{
		Index:           1,
		Mu:              2,
		Lamb:            interval.Seconds(),
		Policy:          policy,
		StatusTopic:     "test/status/" + policy.String(),
		AckTopic:        "test/ack/" + policy.String(),
		ArrivalInterval: interval,
		AckTimeout:      timeout,
	}
}

func newPublisher(t *testing.T, run config.Run, conn transport.Conn, opts ...Option) (*Publisher, stats.Tracker) {
	t.Helper()

	tracker := stats.NewStatTracker()
	p := New(run, "pub-test", conn, zap.NewNop(), opts...)
	if err := p.Init(tracker.NewDomain("Publisher")); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p, tracker
}

func collect(t *testing.T, ch <-chan transport.Message, n int) []message.StatusUpdate {
	t.Helper()

	var out []message.StatusUpdate
	for len(out) < n {
		select {
		case msg := <-ch:
			upd, err := message.ParseStatusUpdate(msg.Payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			out = append(out, upd)
		case <-time.After(2 * time.Second):
			t.Fatalf("Expected %d updates, got %d", n, len(out))
		}
	}
	return out
}

func TestPublisher_CUPeriodic(t *testing.T) {
	broker := transport.NewLoopback()
	run := testRun(config.PolicyCU, 20*time.Millisecond, time.Second)

	updates, _ := broker.Conn().Subscribe(run.StatusTopic)
	p, tracker := newPublisher(t, run, broker.Conn(), WithMaxUpdates(3))

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := collect(t, updates, 3)
	for i, upd := range got {
		if upd.Idx != uint64(i+1) {
			t.Errorf("Expected index %d, got %d", i+1, upd.Idx)
		}
		if upd.Mu != 2 || upd.PublisherID != "pub-test" {
			t.Errorf("Unexpected update fields %+v", upd)
		}
		if i > 0 {
			gap := upd.Generated().Sub(got[i-1].Generated())
			if gap < 20*time.Millisecond {
				t.Errorf("Expected spacing >= interval, got %s", gap)
			}
		}
	}

	totals := tracker.Totals()["Publisher"]
	if totals[stats.StatUpdatesPublished] != 3 {
		t.Errorf("Expected 3 published, got %d", totals[stats.StatUpdatesPublished])
	}
	if totals[stats.StatAckTimeouts] != 0 {
		t.Errorf("Expected CU to never wait for acks, got %d timeouts", totals[stats.StatAckTimeouts])
	}
}

func TestPublisher_ZWTimesOutWithoutAck(t *testing.T) {
	broker := transport.NewLoopback()
	timeout := 60 * time.Millisecond
	interval := 40 * time.Millisecond
	run := testRun(config.PolicyZW, interval, timeout)

	updates, _ := broker.Conn().Subscribe(run.StatusTopic)
	p, tracker := newPublisher(t, run, broker.Conn(), WithMaxUpdates(2))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected publisher to keep going without acks")
	}

	got := collect(t, updates, 2)
	gap := got[1].Generated().Sub(got[0].Generated())
	if gap < timeout+interval {
		t.Errorf("Expected spacing >= timeout+interval (%s), got %s", timeout+interval, gap)
	}
	if gap > timeout+interval+500*time.Millisecond {
		t.Errorf("Expected spacing close to timeout+interval, got %s", gap)
	}

	if n := tracker.Totals()["Publisher"][stats.StatAckTimeouts]; n != 2 {
		t.Errorf("Expected 2 ack timeouts, got %d", n)
	}
}

func TestPublisher_ZWAckUnblocks(t *testing.T) {
	broker := transport.NewLoopback()
	run := testRun(config.PolicyZW, 5*time.Millisecond, 5*time.Second)

	sub := broker.Conn()
	updates, _ := sub.Subscribe(run.StatusTopic)
	go func() {
		for range updates {
			_ = sub.Publish(run.AckTopic, []byte(message.AckPayload))
		}
	}()
	defer sub.Close()

	p, tracker := newPublisher(t, run, broker.Conn(), WithMaxUpdates(3))

	start := time.Now()
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected acks to unblock the publisher, took %s", elapsed)
	}

	totals := tracker.Totals()["Publisher"]
	if totals[stats.StatAcksReceived] != 3 || totals[stats.StatAckTimeouts] != 0 {
		t.Errorf("Expected 3 acks and no timeouts, got %v", totals)
	}
}

func TestPublisher_StopsOnDone(t *testing.T) {
	broker := transport.NewLoopback()
	run := testRun(config.PolicyCU, 10*time.Millisecond, time.Second)

	sub := broker.Conn()
	updates, _ := sub.Subscribe(run.StatusTopic)
	defer sub.Close()

	p, _ := newPublisher(t, run, broker.Conn())

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	collect(t, updates, 2)
	_ = sub.Publish(run.AckTopic, []byte(message.DonePayload))

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected DONE to end the run")
	}
}

func TestPublisher_CancelledContext(t *testing.T) {
	broker := transport.NewLoopback()
	run := testRun(config.PolicyZW, time.Hour, time.Hour)
	p, _ := newPublisher(t, run, broker.Conn())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected cancel to end the run")
	}
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []control.Published
}

func (r *recordingNotifier) Notify(pub control.Published) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, pub)
}

func TestPublisher_NotifiesEveryIndex(t *testing.T) {
	broker := transport.NewLoopback()
	run := testRun(config.PolicyCU, time.Millisecond, time.Second)
	n := &recordingNotifier{}

	p, _ := newPublisher(t, run, broker.Conn(), WithMaxUpdates(4), WithNotifier(n))
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.got) != 4 {
		t.Fatalf("Expected 4 notifications, got %d", len(n.got))
	}
	for i, pub := range n.got {
		if pub.Idx != uint64(i+1) || pub.PublisherID != "pub-test" {
			t.Errorf("Unexpected notification %+v", pub)
		}
	}
}

func TestPublisher_WaitsForReady(t *testing.T) {
	broker := transport.NewLoopback()
	run := testRun(config.PolicyCU, time.Millisecond, time.Second)

	updates, _ := broker.Conn().Subscribe(run.StatusTopic)
	ready := make(chan struct{})
	p, _ := newPublisher(t, run, broker.Conn(), WithMaxUpdates(1), WithReady(ready))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case <-updates:
		t.Fatal("Expected no update before ready")
	case <-time.After(50 * time.Millisecond):
	}

	close(ready)
	if got := collect(t, updates, 1); got[0].Idx != 1 {
		t.Errorf("Expected the first update to carry index 1, got %d", got[0].Idx)
	}
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
